package excel

import (
	"context"
	"fmt"

	"flexwta/domain/design"
	"flexwta/domain/model"
	apperrors "flexwta/internal/errors"
	"flexwta/internal/logging"
)

const colAlternative = "alternative"

// DesignReader loads explicit TIOLI scenario designs from per-experiment
// files. Each scenario appears as two rows, a contract row and an opt-out
// row; the pairing and the zeroed opt-out cells are validated by the domain
// constructor, not here.
type DesignReader struct {
	paths map[model.Experiment]string
}

// NewDesignReader creates a design source over experiment -> file path
func NewDesignReader(paths map[model.Experiment]string) *DesignReader {
	copied := make(map[model.Experiment]string, len(paths))
	for k, v := range paths {
		copied[k] = v
	}
	return &DesignReader{paths: copied}
}

// LoadDesign reads one experiment's scenario table
func (r *DesignReader) LoadDesign(ctx context.Context, experiment model.Experiment) (*design.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := r.paths[experiment]
	if !ok {
		return nil, apperrors.IngestInvalid(fmt.Sprintf("no design file configured for experiment %s", experiment))
	}

	table, err := NewSheetReader(path).ReadTable()
	if err != nil {
		return nil, apperrors.Wrapf(err, "reading design file %s", path)
	}
	if err := table.requireColumns(colScenarioID, colAlternative); err != nil {
		return nil, apperrors.IngestInvalid(fmt.Sprintf("design file %s: %v", path, err))
	}

	attributeColumns := make([]string, 0, len(table.Headers))
	for _, h := range table.Headers {
		switch h {
		case colScenarioID, colAlternative:
		default:
			attributeColumns = append(attributeColumns, h)
		}
	}
	if len(attributeColumns) == 0 {
		return nil, apperrors.IngestInvalid(fmt.Sprintf("design file %s has no attribute columns", path))
	}

	rows := make([]design.Row, 0, len(table.Rows))
	for i, row := range table.Rows {
		scenarioID, err := stringCell(row, colScenarioID, i)
		if err != nil {
			return nil, apperrors.IngestInvalid(fmt.Sprintf("design file %s: %v", path, err))
		}
		altRaw, err := stringCell(row, colAlternative, i)
		if err != nil {
			return nil, apperrors.IngestInvalid(fmt.Sprintf("design file %s: %v", path, err))
		}
		alt := design.Alternative(altRaw)
		if alt != design.AltContract && alt != design.AltOptOut {
			return nil, apperrors.IngestInvalid(
				fmt.Sprintf("design file %s: row %d has unknown alternative %q", path, i+1, altRaw))
		}

		values := make(map[string]float64, len(attributeColumns))
		for _, col := range attributeColumns {
			v, err := floatCell(row, col, i)
			if err != nil {
				return nil, apperrors.IngestInvalid(fmt.Sprintf("design file %s: %v", path, err))
			}
			values[col] = v
		}

		rows = append(rows, design.Row{ScenarioID: scenarioID, Alternative: alt, Values: values})
	}

	designTable, err := design.NewTable(experiment, rows)
	if err != nil {
		return nil, err
	}
	logging.Info("[DesignReader] Loaded %s design: %d scenarios", experiment, designTable.NumScenarios())
	return designTable, nil
}
