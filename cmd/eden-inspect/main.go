// eden-inspect steps through a recorded trace: the board, agent observations
// and what a selected cell decodes to.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/eden/backend"
	"github.com/brensch/eden/config"
	"github.com/brensch/eden/executor/rollout"
	"github.com/brensch/eden/logging"
	"github.com/brensch/eden/protocol"
	"github.com/brensch/eden/script"
	"github.com/brensch/eden/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("EDEN_CONFIG"), "YAML run config")
	tracePath := flag.String("trace", "", "Trace file (.jsonl.zst) to inspect")
	query := flag.String("script", "", "Run a script query against the trace and exit")
	logPath := flag.String("log", "inspect.log", "Log file; the TUI owns the terminal")
	flag.Parse()

	if *tracePath == "" {
		fmt.Fprintln(os.Stderr, "-trace is required")
		os.Exit(2)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	logger, err := logging.New(f, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}

	tables, err := config.LoadTables(cfg.DefinitionDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tables: %v\n", err)
		os.Exit(1)
	}
	codec, err := rollout.NewCodec(cfg, tables, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "codec: %v\n", err)
		os.Exit(1)
	}
	steps, err := store.ReadTrace(*tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "trace: %v\n", err)
		os.Exit(1)
	}

	local := &script.Local{Landforms: tables.Landforms, Recipes: tables.Recipe}
	if len(steps) > 0 {
		if ui, err := protocol.DecodeUI(steps[0].UI, tables.MapSize); err == nil {
			local.Terrain = ui.Terrain()
		}
	}

	if *query != "" {
		out, err := backend.NewReplay(steps, local).RunScript(context.Background(), *query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "script: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(out)
		return
	}

	m, err := newModel(steps, codec, tables)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
	logger.Info("inspecting trace", slog.String("path", *tracePath), slog.Int("steps", len(steps)))
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		logger.Error("tui failed", slog.Any("error", err))
		os.Exit(1)
	}
}
