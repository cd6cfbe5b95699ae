package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// TraceStep is one backend exchange as the rollout saw it. Observations and
// Results hold one flat record per agent; UI is agent 0's UI record.
type TraceStep struct {
	Episode      string       `json:"episode"`
	Step         int          `json:"step"`
	Seed         int64        `json:"seed,omitempty"`
	Observations [][]float32  `json:"observations"`
	UI           []float32    `json:"ui,omitempty"`
	Actions      [][3]float32 `json:"actions"`
	Results      [][]float32  `json:"results"`
}

// TraceWriter appends steps to a zstd-compressed JSONL file.
type TraceWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// TracePath is where an episode's trace lives under dir.
func TracePath(dir, episode string) string {
	return filepath.Join(dir, "traces", episode+".jsonl.zst")
}

func NewTraceWriter(path string) (*TraceWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &TraceWriter{path: path, f: f, enc: enc, w: bufio.NewWriterSize(enc, 128*1024)}, nil
}

func (t *TraceWriter) Path() string { return t.path }

func (t *TraceWriter) Write(step TraceStep) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return ErrClosed
	}
	b, err := json.Marshal(step)
	if err != nil {
		return err
	}
	if _, err := t.w.Write(b); err != nil {
		return err
	}
	return t.w.WriteByte('\n')
}

func (t *TraceWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return nil
	}
	flushErr := t.w.Flush()
	encErr := t.enc.Close()
	fileErr := t.f.Close()
	t.w, t.enc, t.f = nil, nil, nil
	switch {
	case flushErr != nil:
		return flushErr
	case encErr != nil:
		return encErr
	default:
		return fileErr
	}
}

// ReadTrace loads every step of a trace file in order.
func ReadTrace(path string) ([]TraceStep, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	var steps []TraceStep
	for sc.Scan() {
		var s TraceStep
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			return nil, fmt.Errorf("%s: step %d: %w", filepath.Base(path), len(steps), err)
		}
		steps = append(steps, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return steps, nil
}
