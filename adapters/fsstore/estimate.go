package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"flexwta/domain/core"
	"flexwta/domain/model"
)

// EstimateFiles loads point estimates from JSON files, one per experiment.
// The files come from the external estimator and are treated as read-only
// inputs: loaded once, validated, never rewritten.
type EstimateFiles struct {
	paths map[model.Experiment]string
}

// NewEstimateFiles maps each experiment to its estimate file.
func NewEstimateFiles(paths map[model.Experiment]string) *EstimateFiles {
	copied := make(map[model.Experiment]string, len(paths))
	for k, v := range paths {
		copied[k] = v
	}
	return &EstimateFiles{paths: copied}
}

// LoadEstimate reads and validates one experiment's estimate.
func (e *EstimateFiles) LoadEstimate(ctx context.Context, experiment model.Experiment) (*model.PointEstimate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := e.paths[experiment]
	if !ok {
		return nil, fmt.Errorf("%w: no estimate file configured for %s", core.ErrEstimateNotFound, experiment)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrEstimateNotFound, path)
		}
		return nil, fmt.Errorf("reading estimate: %w", err)
	}

	var estimate model.PointEstimate
	if err := json.Unmarshal(data, &estimate); err != nil {
		return nil, fmt.Errorf("decoding estimate %s: %w", path, err)
	}
	if estimate.Experiment != experiment {
		return nil, core.NewSpecMismatchError("estimate experiment", experiment, estimate.Experiment)
	}
	if err := estimate.Validate(); err != nil {
		return nil, err
	}
	return &estimate, nil
}
