package fsstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"flexwta/domain/core"
	"flexwta/domain/model"
	"flexwta/domain/result"
)

const statisticsFile = "statistics.jsonl"

// StatisticsPath returns where an experiment's replicate statistics land.
func (s *Store) StatisticsPath(experiment model.Experiment) string {
	return filepath.Join(s.experimentDir(experiment), statisticsFile)
}

// StatisticLog is an append-only JSONL file of replicate statistics, one
// object per line. It implements both the sink side (runner writes) and the
// repository side (aggregation reads). Append is safe for concurrent use,
// though the runner serializes writes through a single drain goroutine.
type StatisticLog struct {
	mu     sync.Mutex
	file   *os.File
	enc    *json.Encoder
	path   string
	closed bool
}

// OpenStatisticLog opens (or creates) the log at path. A fresh run truncates
// the previous contents: resuming re-runs replicates deterministically, so
// appending to stale rows would double-count them.
func OpenStatisticLog(path string, truncate bool) (*StatisticLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating statistics directory: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening statistics log: %w", err)
	}
	return &StatisticLog{file: file, enc: json.NewEncoder(file), path: path}, nil
}

// Path returns the log file location.
func (l *StatisticLog) Path() string { return l.path }

// Append validates and writes statistics, one JSON line each.
func (l *StatisticLog) Append(ctx context.Context, statistics []result.Statistic) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("%w: statistics log already closed", core.ErrInvalidArgument)
	}
	for _, stat := range statistics {
		if err := stat.Validate(); err != nil {
			return err
		}
		if err := l.enc.Encode(stat); err != nil {
			return fmt.Errorf("appending statistic %s: %w", stat.Name, err)
		}
	}
	return nil
}

// Close flushes and closes the underlying file. Safe to call twice.
func (l *StatisticLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// ListByRun scans the log and returns the rows belonging to one run, in file
// order. Reading uses its own handle, so it works while the log is open for
// writing and after it is closed.
func (l *StatisticLog) ListByRun(ctx context.Context, runID core.RunID) ([]result.Statistic, error) {
	return ReadStatistics(ctx, l.path, runID)
}

// ReadStatistics reads one run's statistics from a JSONL log file.
func ReadStatistics(ctx context.Context, path string, runID core.RunID) ([]result.Statistic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("statistics log", path)
		}
		return nil, fmt.Errorf("opening statistics log: %w", err)
	}
	defer file.Close()

	var statistics []result.Statistic
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var stat result.Statistic
		if err := json.Unmarshal(raw, &stat); err != nil {
			return nil, fmt.Errorf("decoding statistics log line %d: %w", line, err)
		}
		if stat.RunID != runID {
			continue
		}
		statistics = append(statistics, stat)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning statistics log: %w", err)
	}
	return statistics, nil
}
