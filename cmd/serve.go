package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andre-sav/HADES-sub001/internal/budget"
	"github.com/andre-sav/HADES-sub001/internal/model"
	"github.com/andre-sav/HADES-sub001/internal/pipeline"
	"github.com/andre-sav/HADES-sub001/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for qualification requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// apiServer carries the pipeline environment into the HTTP handlers.
type apiServer struct {
	env *pipelineEnv
}

// newRouter assembles the chi router: request logging, permissive CORS for
// the dashboard, and the v1 API surface.
func newRouter(env *pipelineEnv) http.Handler {
	s := &apiServer{env: env}

	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/qualify", s.handleQualify)
		r.Get("/budget/{workflow}", s.handleBudgetStatus)
		r.Get("/runs", s.handleRunsList)
		r.Get("/runs/{id}", s.handleRunGet)
	})

	return r
}

// requestLogger emits one zap entry per request with status and latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type qualifyRequest struct {
	Leads     []*model.Lead    `json:"leads"`
	Workflows []model.Workflow `json:"workflows,omitempty"`
}

type qualifyResponse struct {
	RunID  string        `json:"run_id"`
	Result *model.Result `json:"result"`
}

func (s *apiServer) handleQualify(w http.ResponseWriter, r *http.Request) {
	var req qualifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Leads) == 0 {
		writeError(w, http.StatusBadRequest, "leads are required")
		return
	}
	for _, wf := range req.Workflows {
		if !wf.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown workflow %q", wf))
			return
		}
	}

	result, err := s.env.Pipeline.Process(r.Context(), req.Leads, pipeline.Options{Workflows: req.Workflows})
	if err != nil {
		zap.L().Error("api: qualify failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "qualification failed")
		return
	}

	run, err := s.env.Store.CreateRun(r.Context(), result)
	if err != nil {
		zap.L().Error("api: persist run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "persist run failed")
		return
	}

	writeJSON(w, http.StatusOK, qualifyResponse{RunID: run.ID, Result: result})
}

func (s *apiServer) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	wf := model.Workflow(chi.URLParam(r, "workflow"))
	if !wf.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown workflow %q", wf))
		return
	}

	state, err := s.env.Budget.Status(r.Context(), wf)
	if err != nil {
		if eris.Is(err, budget.ErrNoCap) {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("no weekly cap configured for %s", wf))
			return
		}
		zap.L().Error("api: budget status failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "budget status failed")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (s *apiServer) handleRunsList(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Limit: 50}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("workflow"); v != "" {
		wf := model.Workflow(v)
		if !wf.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown workflow %q", v))
			return
		}
		filter.Workflow = wf
	}

	runs, err := s.env.Store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

func (s *apiServer) handleRunGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if eris.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		zap.L().Error("api: get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
