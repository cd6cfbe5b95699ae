package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// EpisodeSummary is one line of episodes.csv and one row of the index.
type EpisodeSummary struct {
	EpisodeID  string    `csv:"episode_id"`
	Seed       int64     `csv:"seed"`
	Mode       string    `csv:"mode"`
	Agents     int       `csv:"agents"`
	Steps      int       `csv:"steps"`
	Done       bool      `csv:"done"`
	Cancelled  bool      `csv:"cancelled"`
	Total      float64   `csv:"reward_total"`
	Mean       float64   `csv:"reward_mean"`
	Std        float64   `csv:"reward_std"`
	Min        float64   `csv:"reward_min"`
	Max        float64   `csv:"reward_max"`
	TracePath  string    `csv:"trace_path"`
	StartedAt  time.Time `csv:"started_at"`
	FinishedAt time.Time `csv:"finished_at"`
}

// Summarize fills the reward statistics from per-agent episode returns.
func (s *EpisodeSummary) Summarize(returns []float64) {
	s.Agents = len(returns)
	if len(returns) == 0 {
		return
	}
	s.Total = floats.Sum(returns)
	s.Min = floats.Min(returns)
	s.Max = floats.Max(returns)
	s.Mean, s.Std = stat.MeanStdDev(returns, nil)
	if len(returns) == 1 {
		s.Std = 0
	}
}

// SummaryWriter appends episode summaries to a CSV file.
type SummaryWriter struct {
	f             *os.File
	headerWritten bool
}

// OpenSummaryWriter appends to path, writing the header only when the file is
// new.
func OpenSummaryWriter(path string) (*SummaryWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create summary dir: %w", err)
	}
	info, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open summary: %w", err)
	}
	return &SummaryWriter{f: f, headerWritten: statErr == nil && info.Size() > 0}, nil
}

func (w *SummaryWriter) Write(s EpisodeSummary) error {
	records := []EpisodeSummary{s}
	if !w.headerWritten {
		if err := gocsv.Marshal(records, w.f); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
		w.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, w.f); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

func (w *SummaryWriter) Close() error {
	return w.f.Close()
}

// ReadSummaries loads every summary in a CSV file written by SummaryWriter.
func ReadSummaries(path string) ([]EpisodeSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []EpisodeSummary
	if err := gocsv.UnmarshalFile(f, &out); err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	return out, nil
}
