// Package results persists per-vehicle outcomes for a run as JSON lines.
package results

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/fleetpm/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// record is one line of the results file.
type record struct {
	RunID string `json:"run_id"`
	schemas.Outcome
}

// Writer appends outcomes to <dir>/fleetpm-<run id>.jsonl. Every line is
// flushed as it is written so an interrupted run keeps what it finished.
type Writer struct {
	mu     sync.Mutex
	runID  string
	path   string
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

// NewWriter creates the results directory if needed and opens the run file.
func NewWriter(dir, runID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("fleetpm-%s.jsonl", runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	return &Writer{runID: runID, path: path, file: f, buf: bufio.NewWriter(f)}, nil
}

// Path returns the results file path.
func (w *Writer) Path() string { return w.path }

// RunID returns the run this writer belongs to.
func (w *Writer) RunID() string { return w.runID }

// Write appends one outcome.
func (w *Writer) Write(o schemas.Outcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("results writer for run %s is closed", w.runID)
	}

	line, err := json.Marshal(record{RunID: w.runID, Outcome: o})
	if err != nil {
		return fmt.Errorf("failed to encode outcome for %s: %w", o.VehicleID, err)
	}
	if _, err := w.buf.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write outcome for %s: %w", o.VehicleID, err)
	}
	return w.buf.Flush()
}

// Close flushes and closes the file. Calling it again is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// ReadFile loads every outcome from a results file, mainly for tests and
// the validate command.
func ReadFile(path string) ([]schemas.Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []schemas.Outcome
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("corrupt results line: %w", err)
		}
		out = append(out, r.Outcome)
	}
	return out, scanner.Err()
}
