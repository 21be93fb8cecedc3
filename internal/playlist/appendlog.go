package playlist

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// appendLog is an append-only CSV sink guarded by its own mutex, kept
// independent of the playlist's RWMutex so that writing the song,
// bug-report and suggestion logs never contends with list mutations.
// A nil *appendLog is a valid no-op, used when the corresponding path
// is left unconfigured.
type appendLog struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

func openAppendLog(path string) (*appendLog, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("playlist: open log %s: %w", path, err)
	}
	return &appendLog{f: f, w: csv.NewWriter(f)}, nil
}

func (a *appendLog) append(fields ...string) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.w.Write(fields); err != nil {
		return fmt.Errorf("playlist: write log row: %w", err)
	}
	a.w.Flush()
	return a.w.Error()
}

func (a *appendLog) Close() error {
	if a == nil {
		return nil
	}
	return a.f.Close()
}
