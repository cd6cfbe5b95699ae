// Package store persists rollout output: parquet transition batches, zstd
// JSONL step traces and a sqlite catalogue of both.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const transitionSchema = "eden_transition_v2"

var ErrClosed = errors.New("store: writer is closed")

// TransitionRow is one agent's step: the encoded observation it acted on,
// the action sent, and what the evaluators made of the result.
//
// Obs holds the observation flattened row-major; Shape restores it.
type TransitionRow struct {
	EpisodeID string    `parquet:"episode_id,dict"`
	Step      int32     `parquet:"step"`
	Agent     int32     `parquet:"agent"`
	AgentType int32     `parquet:"agent_type"`
	Mode      string    `parquet:"mode,dict"`
	Shape     []int32   `parquet:"shape"`
	Obs       []float32 `parquet:"obs"`
	// Scaled is the mode-independent scaled record: raw segments plus the
	// nearest sighting per known entity id.
	Scaled []float32 `parquet:"scaled"`

	ActionType int32   `parquet:"action_type"`
	Param1     float32 `parquet:"param1"`
	Param2     float32 `parquet:"param2"`

	Outcome string  `parquet:"outcome,dict"`
	Reward  float32 `parquet:"reward"`
	Done    bool    `parquet:"done"`
	Dead    bool    `parquet:"dead"`
}

// BatchWriter streams rows into tmp/<name>.parquet and moves the file into
// the output directory on Finalize.
type BatchWriter struct {
	outDir  string
	name    string
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[TransitionRow]

	episodes map[string]struct{}
	rows     int
}

func NewBatchWriter(outDir string) (*BatchWriter, error) {
	if outDir == "" {
		return nil, fmt.Errorf("store: output dir is required")
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("transitions_%d.parquet", time.Now().UnixNano())
	b := &BatchWriter{
		outDir:   absOut,
		name:     name,
		tmpPath:  filepath.Join(tmpDir, name),
		outPath:  filepath.Join(absOut, name),
		episodes: make(map[string]struct{}),
	}

	b.file, err = os.OpenFile(b.tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}
	b.writer = parquet.NewGenericWriter[TransitionRow](
		b.file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("obs"),
	)
	b.writer.SetKeyValueMetadata("schema", transitionSchema)
	return b, nil
}

func (b *BatchWriter) OutPath() string { return b.outPath }
func (b *BatchWriter) Rows() int       { return b.rows }
func (b *BatchWriter) Episodes() int   { return len(b.episodes) }

func (b *BatchWriter) WriteRows(rows []TransitionRow) error {
	if b.writer == nil {
		return ErrClosed
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := b.writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	for _, r := range rows {
		b.episodes[r.EpisodeID] = struct{}{}
	}
	b.rows += len(rows)
	return nil
}

// Finalize closes the writer and renames the file into place. An empty batch
// is removed and reported with an empty path.
func (b *BatchWriter) Finalize() (path string, rows int, err error) {
	if b.writer == nil {
		return "", 0, nil
	}
	closeErr := b.writer.Close()
	b.writer = nil
	_ = b.file.Sync()
	fileErr := b.file.Close()
	b.file = nil

	if closeErr != nil {
		return "", 0, fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", 0, fmt.Errorf("close parquet file: %w", fileErr)
	}
	if b.rows == 0 {
		_ = os.Remove(b.tmpPath)
		return "", 0, nil
	}
	if err := os.Rename(b.tmpPath, b.outPath); err != nil {
		return "", 0, fmt.Errorf("rename parquet: %w", err)
	}
	return b.outPath, b.rows, nil
}

// WriteTransitions writes rows to path in one shot via a temp file.
func WriteTransitions(path string, rows []TransitionRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.SkipPageBounds("obs"),
		parquet.KeyValueMetadata("schema", transitionSchema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

func ReadTransitions(path string) ([]TransitionRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", filepath.Base(path), err)
	}

	reader := parquet.NewGenericReader[TransitionRow](pf)
	defer reader.Close()

	rows := make([]TransitionRow, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read parquet %s: %w", filepath.Base(path), err)
	}
	return rows[:n], nil
}
