// archive2train re-encodes recorded traces into transition parquet files,
// optionally under a different observation mode than they were played with.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/brensch/eden/config"
	"github.com/brensch/eden/executor/rollout"
	"github.com/brensch/eden/logging"
	"github.com/brensch/eden/rules"
	"github.com/brensch/eden/store"
)

const traceSuffix = ".jsonl.zst"

func main() {
	inDir := flag.String("in-dir", "", "Directory containing recorded traces")
	outDir := flag.String("out-dir", "", "Output directory for transition parquet files")
	configPath := flag.String("config", os.Getenv("EDEN_CONFIG"), "YAML run config")
	mode := flag.String("mode", "", "Observation mode override (matrix or compact)")
	flag.Parse()

	if *inDir == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "-in-dir and -out-dir are required")
		os.Exit(2)
	}
	absIn, _ := filepath.Abs(*inDir)
	absOut, _ := filepath.Abs(*outDir)
	if absIn == absOut {
		fmt.Fprintln(os.Stderr, "out-dir must be different from in-dir")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *mode != "" {
		cfg.Mode = strings.ToLower(*mode)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	tables, err := config.LoadTables(cfg.DefinitionDir)
	if err != nil {
		logger.Error("loading definition tables", slog.Any("error", err))
		os.Exit(1)
	}
	doneTable, scoreTable, err := rules.LoadTables(cfg.DefinitionDir)
	if err != nil {
		logger.Error("loading rule tables", slog.Any("error", err))
		os.Exit(1)
	}
	codec, err := rollout.NewCodec(cfg, tables, logger)
	if err != nil {
		logger.Error("building codec", slog.Any("error", err))
		os.Exit(1)
	}
	env := rollout.Env{
		Codec:  codec,
		Vocab:  tables,
		Size:   tables.MapSize,
		Scaler: rollout.NewScaler(tables, logger),
		Done:   doneTable,
		Score:  scoreTable,
		Logger: logger,
	}

	inputs := make([]string, 0, 256)
	_ = filepath.WalkDir(absIn, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), traceSuffix) {
			inputs = append(inputs, path)
		}
		return nil
	})
	if len(inputs) == 0 {
		logger.Error("no trace inputs found", slog.String("dir", absIn))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	converted, rows := 0, 0
	for _, inPath := range inputs {
		if ctx.Err() != nil {
			break
		}
		episode := strings.TrimSuffix(filepath.Base(inPath), traceSuffix)
		outPath := filepath.Join(absOut, episode+".parquet")
		n, err := convertOne(ctx, env, cfg.Rollout.Workers, tables, episode, inPath, outPath)
		if err != nil {
			logger.Warn("converting trace", slog.String("path", inPath), slog.Any("error", err))
			continue
		}
		if n > 0 {
			converted++
			rows += n
		}
	}

	logger.Info("re-encode complete",
		slog.Int("inputs", len(inputs)),
		slog.Int("files", converted),
		slog.Int("rows", rows),
		slog.String("mode", codec.Mode),
	)
	if converted == 0 {
		logger.Error("no output written (no convertible steps)")
		os.Exit(1)
	}
}

func convertOne(ctx context.Context, env rollout.Env, workers int, tables *config.Tables, episode, inPath, outPath string) (int, error) {
	steps, err := store.ReadTrace(inPath)
	if err != nil {
		return 0, err
	}
	if len(steps) == 0 {
		return 0, nil
	}
	if steps[0].Episode != "" {
		episode = steps[0].Episode
	}
	env.AgentTypes = tables.AgentTypes(len(steps[0].Observations))

	rows, err := rollout.Reencode(ctx, env, episode, steps, workers)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := store.WriteTransitions(outPath, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
