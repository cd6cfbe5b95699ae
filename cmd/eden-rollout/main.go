package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/eden/backend"
	"github.com/brensch/eden/config"
	"github.com/brensch/eden/executor/inference"
	"github.com/brensch/eden/executor/rollout"
	"github.com/brensch/eden/logging"
	"github.com/brensch/eden/protocol"
	"github.com/brensch/eden/rules"
	"github.com/brensch/eden/script"
	"github.com/brensch/eden/store"
)

const summaryFile = "episodes.csv"

var (
	totalSteps    atomic.Int64
	totalEpisodes atomic.Int64
)

type writeRequest struct {
	rows []store.TransitionRow
}

func main() {
	configPath := flag.String("config", getEnvOrDefault("EDEN_CONFIG", ""), "YAML run config; embedded defaults when empty")
	episodes := flag.Int("episodes", getEnvIntOrDefault("EDEN_EPISODES", -1), "Episodes to run; overrides rollout.episodes when >= 0 (0 runs until interrupted)")
	replay := flag.String("replay", getEnvOrDefault("EDEN_REPLAY", ""), "Replay a recorded trace instead of dialing the backend")
	modelPath := flag.String("model", getEnvOrDefault("EDEN_MODEL", ""), "ONNX model path; overrides model.path")
	outDir := flag.String("out-dir", getEnvOrDefault("EDEN_OUT_DIR", ""), "Output directory; overrides store.dir")
	verbose := flag.Bool("verbose", false, "Log agent 0's board every step at debug level")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *episodes >= 0 {
		cfg.Rollout.Episodes = *episodes
	}
	if *replay != "" {
		cfg.Backend.Replay = *replay
	}
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if *outDir != "" {
		cfg.Store.Dir = *outDir
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *verbose, logger); err != nil {
		logger.Error("rollout failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, verbose bool, logger *slog.Logger) error {
	tables, err := config.LoadTables(cfg.DefinitionDir)
	if err != nil {
		return err
	}
	doneTable, scoreTable, err := rules.LoadTables(cfg.DefinitionDir)
	if err != nil {
		return err
	}
	codec, err := rollout.NewCodec(cfg, tables, logger)
	if err != nil {
		return err
	}

	policy, err := openPolicy(cfg, codec.Space, logger)
	if err != nil {
		return err
	}
	defer policy.Close()

	base, err := openBackend(ctx, cfg, tables, logger)
	if err != nil {
		return err
	}
	defer base.Close()

	n, err := base.AgentCount(ctx)
	if err != nil {
		return fmt.Errorf("agent count: %w", err)
	}
	if want := tables.TotalAgents(); want > 0 && want != n {
		logger.Warn("agent count differs from definition tables", slog.Int("backend", n), slog.Int("tables", want))
	}

	if err := os.MkdirAll(cfg.Store.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	summaries, err := store.OpenSummaryWriter(filepath.Join(cfg.Store.Dir, summaryFile))
	if err != nil {
		return err
	}
	defer summaries.Close()

	var index *store.Index
	if cfg.Store.Index != "" {
		index, err = store.OpenIndex(cfg.Store.Index)
		if err != nil {
			return err
		}
		defer index.Close()
	}

	writeReqs := make(chan writeRequest, 4)
	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		parquetWriterLoop(cfg.Store.Dir, cfg.Store.FlushRows, index, writeReqs, logger)
	}()
	defer func() {
		close(writeReqs)
		writerWG.Wait()
		logger.Info("shutdown complete", slog.Int64("episodes", totalEpisodes.Load()), slog.Int64("steps", totalSteps.Load()))
	}()

	go statsLoop(ctx, policy, logger)

	env := rollout.Env{
		Codec:      codec,
		Policy:     policy,
		Vocab:      tables,
		AgentTypes: tables.AgentTypes(n),
		Size:       tables.MapSize,
		Scaler:     rollout.NewScaler(tables, logger),
		Done:       doneTable,
		Score:      scoreTable,
		Logger:     logger,
		OnStep:     func(rollout.StepReport) { totalSteps.Add(1) },
	}

	episodes := cfg.Rollout.Episodes
	if cfg.Backend.Replay != "" {
		episodes = 1
	}
	for ep := 0; episodes <= 0 || ep < episodes; ep++ {
		if ctx.Err() != nil {
			break
		}
		id := uuid.NewString()
		seed := cfg.Rollout.Seed + int64(ep)

		env.Backend = base
		var trace *store.TraceWriter
		if cfg.Store.Trace && cfg.Backend.Replay == "" {
			trace, err = store.NewTraceWriter(store.TracePath(cfg.Store.Dir, id))
			if err != nil {
				return err
			}
			env.Backend = backend.NewRecorder(base, trace, id)
		}

		started := time.Now()
		out, err := rollout.Run(ctx, env, rollout.Options{
			EpisodeID:     id,
			Seed:          seed,
			MaxSteps:      cfg.Rollout.MaxSteps,
			Workers:       cfg.Rollout.Workers,
			Verbose:       verbose,
			ProgressEvery: cfg.Rollout.ProgressEvery,
		})
		if trace != nil {
			if cerr := trace.Close(); cerr != nil {
				logger.Warn("closing trace", slog.String("episode", id), slog.Any("error", cerr))
			}
		}
		if err != nil {
			return fmt.Errorf("episode %s: %w", id, err)
		}

		if len(out.Rows) > 0 {
			writeReqs <- writeRequest{rows: out.Rows}
		}
		summary := out.Summary(id, seed, codec.Mode)
		summary.StartedAt = started
		summary.FinishedAt = time.Now()
		if trace != nil {
			summary.TracePath = trace.Path()
		}
		if err := summaries.Write(summary); err != nil {
			logger.Warn("writing summary", slog.String("episode", id), slog.Any("error", err))
		}
		if index != nil {
			// ctx may already be cancelled; the summary still belongs in the index.
			if err := index.RecordEpisode(context.WithoutCancel(ctx), summary); err != nil {
				logger.Warn("indexing episode", slog.String("episode", id), slog.Any("error", err))
			}
		}
		totalEpisodes.Add(1)
		logger.Info("episode finished",
			slog.String("episode", id),
			slog.Int("steps", out.Steps),
			slog.Bool("completed", out.Completed),
			slog.Float64("reward_mean", summary.Mean),
			slog.Int("rows", len(out.Rows)),
		)
	}
	return nil
}

func openPolicy(cfg *config.Config, space inference.Space, logger *slog.Logger) (inference.Policy, error) {
	if cfg.Model.Path == "" {
		logger.Info("no model configured, using random policy", slog.Int64("seed", cfg.Rollout.Seed))
		return inference.NewRandomPolicy(space, cfg.Rollout.Seed), nil
	}
	if _, err := os.Stat(cfg.Model.Path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	pool, err := inference.NewOnnxPool(cfg.Model.Path, space, cfg.Model.Sessions, inference.OnnxClientConfig{
		BatchSize:    cfg.Model.BatchSize,
		BatchTimeout: cfg.Model.BatchTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("onnx policy ready", slog.String("model", cfg.Model.Path), slog.Int("sessions", cfg.Model.Sessions))
	return inference.NewModelPolicy(space, pool), nil
}

// openBackend replays cfg.Backend.Replay when set. Replays answer landform and
// synthesize_table queries from the trace's first UI record and the tables.
func openBackend(ctx context.Context, cfg *config.Config, tables *config.Tables, logger *slog.Logger) (backend.Backend, error) {
	if cfg.Backend.Replay == "" {
		remote, err := backend.Dial(ctx, backend.RemoteConfig{URL: cfg.Backend.URL, Timeout: cfg.Backend.Timeout, Logger: logger})
		if err != nil {
			return nil, err
		}
		return remote, nil
	}
	steps, err := store.ReadTrace(cfg.Backend.Replay)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("replay %s: %w", cfg.Backend.Replay, backend.ErrEndOfTrace)
	}
	local := &script.Local{Landforms: tables.Landforms, Recipes: tables.Recipe}
	if ui, err := protocol.DecodeUI(steps[0].UI, tables.MapSize); err == nil {
		local.Terrain = ui.Terrain()
	} else {
		logger.Warn("replay has no usable ui record", slog.Any("error", err))
	}
	logger.Info("replaying trace", slog.String("path", cfg.Backend.Replay), slog.Int("steps", len(steps)))
	return backend.NewReplay(steps, local), nil
}

func statsLoop(ctx context.Context, policy inference.Policy, logger *slog.Logger) {
	start := time.Now()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			secs := time.Since(start).Seconds()
			attrs := []any{
				slog.Int64("episodes", totalEpisodes.Load()),
				slog.String("steps_per_sec", strconv.FormatFloat(float64(totalSteps.Load())/secs, 'f', 2, 64)),
			}
			if sp, ok := policy.(interface{ Stats() inference.RuntimeStats }); ok {
				st := sp.Stats()
				attrs = append(attrs,
					slog.Float64("batch_avg", st.AvgBatchSize),
					slog.Int64("batch_last", st.LastBatchSize),
					slog.Int("queue", st.QueueLen),
					slog.Float64("run_avg_ms", st.AvgRunMs),
				)
			}
			logger.Info("stats", attrs...)
		}
	}
}

// parquetWriterLoop streams rows into the current batch and finalizes it once
// it holds flushRows rows. Finalized batches are recorded in index.
func parquetWriterLoop(outDir string, flushRows int, index *store.Index, in <-chan writeRequest, logger *slog.Logger) {
	if flushRows <= 0 {
		flushRows = 4096
	}
	var batch *store.BatchWriter

	finalize := func(reason string) {
		if batch == nil {
			return
		}
		episodes := batch.Episodes()
		path, rows, err := batch.Finalize()
		batch = nil
		if err != nil {
			logger.Error("parquet flush failed", slog.String("reason", reason), slog.Any("error", err))
			return
		}
		if path == "" {
			return
		}
		logger.Info("parquet flush ok", slog.String("path", path), slog.Int("rows", rows), slog.Int("episodes", episodes), slog.String("reason", reason))
		if index == nil {
			return
		}
		entry := store.BatchEntry{Path: path, Rows: rows, Episodes: episodes, CreatedAt: time.Now()}
		if err := index.RecordBatch(context.Background(), entry); err != nil {
			logger.Warn("indexing batch", slog.String("path", path), slog.Any("error", err))
		}
	}

	for req := range in {
		if batch == nil {
			b, err := store.NewBatchWriter(outDir)
			if err != nil {
				logger.Error("opening parquet batch", slog.Any("error", err))
				continue
			}
			batch = b
		}
		if err := batch.WriteRows(req.rows); err != nil {
			if errors.Is(err, store.ErrClosed) {
				batch = nil
			}
			logger.Error("writing parquet rows", slog.Int("rows", len(req.rows)), slog.Any("error", err))
			continue
		}
		if batch.Rows() >= flushRows {
			finalize("rows")
		}
	}
	finalize("final")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
