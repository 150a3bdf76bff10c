package result

import (
	"flexwta/domain/core"
	"flexwta/domain/model"
)

// RunManifest is the complete specification of one replication run.
// This is the truth source for replay - it must exist before any replicate
// artifact, and resuming a run verifies its fingerprint before touching
// anything downstream.
type RunManifest struct {
	RunID       core.RunID       `json:"run_id"`
	Experiment  model.Experiment `json:"experiment"`
	Seed        int64            `json:"seed"`
	Replicates  int              `json:"replicates"`
	InnerDraws  int              `json:"inner_draws"`
	BurnIn      int              `json:"burn_in"`
	SpecHash    core.Hash        `json:"spec_hash"`
	DesignHash  core.Hash        `json:"design_hash"`
	Fingerprint core.Fingerprint `json:"fingerprint"`
	CodeVersion string           `json:"code_version"`
	CreatedAt   core.Timestamp   `json:"created_at"`
}

// NewRunManifest builds a manifest and its determinism fingerprint
func NewRunManifest(
	runID core.RunID,
	experiment model.Experiment,
	seed int64,
	replicates, innerDraws, burnIn int,
	specHash, designHash core.Hash,
	codeVersion string,
) *RunManifest {
	fingerprint := core.ComputeFingerprint(map[string]interface{}{
		"experiment":   string(experiment),
		"seed":         seed,
		"replicates":   replicates,
		"inner_draws":  innerDraws,
		"burn_in":      burnIn,
		"spec_hash":    specHash.String(),
		"design_hash":  designHash.String(),
		"code_version": codeVersion,
	})

	return &RunManifest{
		RunID:       runID,
		Experiment:  experiment,
		Seed:        seed,
		Replicates:  replicates,
		InnerDraws:  innerDraws,
		BurnIn:      burnIn,
		SpecHash:    specHash,
		DesignHash:  designHash,
		Fingerprint: fingerprint,
		CodeVersion: codeVersion,
		CreatedAt:   core.Now(),
	}
}

// Validate checks if the manifest is complete
func (m *RunManifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewValidationError("run_manifest", "run_id cannot be empty")
	}
	if !m.Experiment.Valid() {
		return core.NewValidationError("run_manifest", "experiment is invalid")
	}
	if m.Replicates <= 0 {
		return core.NewValidationError("run_manifest", "replicates must be positive")
	}
	if m.InnerDraws <= 0 {
		return core.NewValidationError("run_manifest", "inner_draws must be positive")
	}
	if m.BurnIn < 0 {
		return core.NewValidationError("run_manifest", "burn_in cannot be negative")
	}
	if m.SpecHash.IsEmpty() {
		return core.NewValidationError("run_manifest", "spec_hash cannot be empty")
	}
	if m.CodeVersion == "" {
		return core.NewValidationError("run_manifest", "code_version cannot be empty")
	}
	return nil
}

// SameConfiguration reports whether another manifest describes the same
// deterministic run. Used when resuming: a fingerprint change means the
// inputs drifted and existing replicate artifacts cannot be trusted.
func (m *RunManifest) SameConfiguration(other *RunManifest) bool {
	return m.Fingerprint == other.Fingerprint
}
