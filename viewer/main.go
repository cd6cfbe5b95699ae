package main

import (
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brensch/eden/config"
	"github.com/brensch/eden/executor/rollout"
	"github.com/brensch/eden/game"
	"github.com/brensch/eden/logging"
	"github.com/brensch/eden/protocol"
	"github.com/brensch/eden/store"
)

// StepView is one trace step prepared for display.
type StepView struct {
	Step    int      `json:"step"`
	Board   string   `json:"board"`
	Actions []string `json:"actions"`
	Present int      `json:"present"`
}

type EpisodeResponse struct {
	Summary store.EpisodeSummary `json:"summary"`
	Rewards *EpisodeRewards      `json:"rewards,omitempty"`
}

type server struct {
	index  *store.Index
	roots  []string
	tables *config.Tables
	logger *slog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/episodes", s.handleEpisodes)
	mux.HandleFunc("/api/episodes/", s.handleEpisode)
	mux.HandleFunc("/api/batches", s.handleBatches)
	mux.HandleFunc("/api/stats", s.handleStats)
	return mux
}

func (s *server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	ids, err := s.index.Episodes(r.Context(), parseIntQuery(r, "limit", 200))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]store.EpisodeSummary, 0, len(ids))
	for _, id := range ids {
		e, err := s.index.Episode(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, e)
	}
	writeJSON(w, out)
}

// handleEpisode serves /api/episodes/{id} and /api/episodes/{id}/steps.
func (s *server) handleEpisode(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/episodes/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "steps") {
		http.NotFound(w, r)
		return
	}
	id, err := url.PathUnescape(parts[0])
	if err != nil {
		http.Error(w, "bad episode id", http.StatusBadRequest)
		return
	}
	summary, err := s.index.Episode(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if len(parts) == 2 {
		s.writeSteps(w, r, summary)
		return
	}

	resp := EpisodeResponse{Summary: summary}
	db, err := openDuckDB(s.roots)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer db.Close()
	rewards, err := queryEpisodeRewards(r.Context(), db, id)
	switch {
	case err == nil:
		resp.Rewards = &rewards
	case errors.Is(err, sql.ErrNoRows):
	default:
		s.logger.Warn("querying episode rewards", slog.String("episode", id), slog.Any("error", err))
	}
	writeJSON(w, resp)
}

func (s *server) writeSteps(w http.ResponseWriter, r *http.Request, summary store.EpisodeSummary) {
	if summary.TracePath == "" {
		http.Error(w, "episode has no trace", http.StatusNotFound)
		return
	}
	steps, err := store.ReadTrace(summary.TracePath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	from := parseIntQuery(r, "from", 0)
	limit := parseIntQuery(r, "limit", 50)

	out := make([]StepView, 0, limit)
	for i := from; i < len(steps) && len(out) < limit; i++ {
		st := steps[i]
		v := StepView{Step: st.Step, Actions: make([]string, len(st.Actions))}
		for j, a := range st.Actions {
			v.Actions[j] = game.Action(a).String()
		}
		for _, o := range st.Observations {
			if len(o) > 0 {
				v.Present++
			}
		}
		if ui, err := protocol.DecodeUI(st.UI, s.tables.MapSize); err == nil {
			v.Board = rollout.RenderBoard(ui, s.tables)
		}
		out = append(out, v)
	}
	writeJSON(w, out)
}

func (s *server) handleBatches(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	batches, err := s.index.Batches(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, batches)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	db, err := openDuckDB(s.roots)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer db.Close()
	stats, err := queryActionStats(r.Context(), db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	listen := fs.String("listen", "127.0.0.1:8080", "HTTP listen address")
	configPath := fs.String("config", os.Getenv("EDEN_CONFIG"), "YAML run config")
	dataDirs := fs.String("data-dirs", "", "Comma-separated directories holding transition parquet batches; defaults to store.dir")
	staticDir := fs.String("static-dir", "", "Optional directory to serve as SPA static")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", slog.Any("error", err))
		os.Exit(2)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		slog.Error("building logger", slog.Any("error", err))
		os.Exit(2)
	}

	tables, err := config.LoadTables(cfg.DefinitionDir)
	if err != nil {
		logger.Error("loading definition tables", slog.Any("error", err))
		os.Exit(1)
	}
	index, err := store.OpenIndex(cfg.Store.Index)
	if err != nil {
		logger.Error("opening index", slog.Any("error", err))
		os.Exit(1)
	}
	defer index.Close()

	roots := parseDataRoots(*dataDirs)
	if len(roots) == 0 {
		roots = []string{cfg.Store.Dir}
	}
	logger.Info("viewer data roots", slog.String("roots", strings.Join(roots, ",")))

	s := &server{index: index, roots: roots, tables: tables, logger: logger}
	mux := http.NewServeMux()
	mux.Handle("/api/", s.routes())
	if strings.TrimSpace(*staticDir) != "" {
		mux.Handle("/", spaHandler{staticPath: *staticDir, indexPath: filepath.Join(*staticDir, "index.html")})
		logger.Info("serving SPA", slog.String("dir", *staticDir))
	}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("viewer API listening", slog.String("addr", "http://"+*listen))
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("viewer stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

// ServeHTTP serves a static asset when one exists and index.html otherwise.
func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Clean(r.URL.Path)
	if path == "/" {
		http.ServeFile(w, r, h.indexPath)
		return
	}
	candidate := filepath.Join(h.staticPath, strings.TrimPrefix(path, "/"))
	if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
		http.ServeFile(w, r, candidate)
		return
	}
	http.ServeFile(w, r, h.indexPath)
}
