package api

import (
	"sort"
	"sync"
	"time"

	"flexwta/domain/core"
	"flexwta/domain/result"
	"flexwta/internal/krinsky"
)

// RunStatus is the lifecycle state of a tracked run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunState is a live snapshot of one replication run
type RunState struct {
	RunID      core.RunID `json:"run_id"`
	Experiment string     `json:"experiment"`
	Status     RunStatus  `json:"status"`
	Completed  int        `json:"completed"`
	Failed     int        `json:"failed"`
	Total      int        `json:"total"`
	LastError  string     `json:"last_error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RunRegistry tracks the runs this process has executed, for the monitor
// endpoints. It holds snapshots only; the runner owns the actual pipeline.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[core.RunID]*RunState
}

// NewRunRegistry creates an empty registry
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[core.RunID]*RunState)}
}

// Begin registers a starting run
func (r *RunRegistry) Begin(manifest *result.RunManifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.runs[manifest.RunID] = &RunState{
		RunID:      manifest.RunID,
		Experiment: string(manifest.Experiment),
		Status:     RunStatusRunning,
		Total:      manifest.Replicates,
		StartedAt:  now,
		UpdatedAt:  now,
	}
}

// Update records replicate progress
func (r *RunRegistry) Update(runID core.RunID, completed, failed int, lastError string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.runs[runID]
	if !ok {
		return
	}
	state.Completed = completed
	state.Failed = failed
	if lastError != "" {
		state.LastError = lastError
	}
	state.UpdatedAt = time.Now().UTC()
}

// Finish marks a run terminal
func (r *RunRegistry) Finish(runID core.RunID, status RunStatus, lastError string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.runs[runID]
	if !ok {
		return
	}
	state.Status = status
	if lastError != "" {
		state.LastError = lastError
	}
	state.UpdatedAt = time.Now().UTC()
}

// Get returns a snapshot of one run
func (r *RunRegistry) Get(runID core.RunID) (RunState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.runs[runID]
	if !ok {
		return RunState{}, false
	}
	return *state, true
}

// List returns snapshots of all runs, newest first
func (r *RunRegistry) List() []RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RunState, 0, len(r.runs))
	for _, state := range r.runs {
		out = append(out, *state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// ProgressHandler glues engine progress into the registry and the SSE hub.
// Pass the returned callback to the replication runner.
func ProgressHandler(registry *RunRegistry, hub *SSEHub, manifest *result.RunManifest) func(krinsky.Progress) {
	return func(p krinsky.Progress) {
		var stage, errMsg string
		if p.Err != nil {
			errMsg = p.Err.Error()
			stage = krinsky.StageOf(p.Err)
		}
		if registry != nil {
			registry.Update(manifest.RunID, p.Completed, p.Failed, errMsg)
		}
		if hub != nil {
			hub.Broadcast(RunEvent{
				RunID:      manifest.RunID,
				Experiment: string(manifest.Experiment),
				Replicate:  p.Replicate,
				Completed:  p.Completed,
				Failed:     p.Failed,
				Total:      p.Total,
				Stage:      stage,
				Error:      errMsg,
				Timestamp:  time.Now().UTC(),
			})
		}
	}
}
