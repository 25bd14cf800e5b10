package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulse-metrics/insights-cli/internal/ingest"
	"github.com/pulse-metrics/insights-cli/internal/model"
	"github.com/pulse-metrics/insights-cli/internal/pipeline"
	"github.com/pulse-metrics/insights-cli/internal/store"
)

// maxUploadBytes caps export uploads (some Meta exports run tens of MB).
const maxUploadBytes = 128 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload and run-status HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		app := newAppServer(st, pipeline.Options{
			SampleSize:       cfg.Pipeline.SampleSize,
			RetryAttempts:    cfg.Pipeline.RetryAttempts,
			RecoveryAttempts: cfg.Pipeline.MaxRecoveryAttempts,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: app.routes(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
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

// appServer bundles the HTTP handlers with their collaborators.
type appServer struct {
	store    store.Store
	ingestor *ingest.Ingestor
	opts     pipeline.Options

	// ingestMu serializes uploads: the store's insert-if-absent save is a
	// non-atomic check-then-insert and tolerates only one writer.
	ingestMu sync.Mutex
}

func newAppServer(st store.Store, opts pipeline.Options) *appServer {
	return &appServer{
		store:    st,
		ingestor: ingest.NewIngestor(st),
		opts:     opts,
	}
}

// routes assembles the API router.
func (s *appServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Post("/imports", s.handleUpload)
	r.Get("/imports", s.handleListImports)
	r.Post("/runs", s.handleStartRun)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)

	return r
}

func (s *appServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts one export file as multipart form field "file" and
// runs the full ingestion path on it synchronously.
func (s *appServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close() //nolint:errcheck

	s.ingestMu.Lock()
	res, err := s.ingestor.IngestReader(r.Context(), header.Filename, file)
	s.ingestMu.Unlock()
	if err != nil {
		var ufe *ingest.UnrecognizedFormatError
		var nvr *ingest.NoValidRecordsError
		switch {
		case errors.As(err, &ufe):
			// Surface the observed columns so callers can map by hand.
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":   "unrecognized export format",
				"columns": ufe.Columns,
			})
		case errors.As(err, &nvr):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			zap.L().Error("upload ingestion failed",
				zap.String("file", header.Filename), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "ingestion failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (s *appServer) handleListImports(w http.ResponseWriter, r *http.Request) {
	imports, err := s.store.ListImports(r.Context(), 100)
	if err != nil {
		zap.L().Error("list imports failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list imports failed")
		return
	}
	writeJSON(w, http.StatusOK, imports)
}

// handleStartRun kicks off an analysis run asynchronously and answers 202
// with the pre-assigned run id for later polling.
func (s *appServer) handleStartRun(w http.ResponseWriter, _ *http.Request) {
	runID := uuid.New().String()
	opts := s.opts
	opts.RunID = runID

	go func() {
		// Detached from the request context: the run outlives the response.
		orch := pipeline.NewOrchestrator(s.store, pipeline.DefaultRegistry())
		summary, err := orch.Execute(context.Background(), opts)
		if err != nil {
			zap.L().Error("async run failed",
				zap.String("run_id", runID), zap.Error(err))
			return
		}
		zap.L().Info("async run complete",
			zap.String("run_id", runID),
			zap.String("status", string(summary.Status)))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": string(model.RunStatusRunning),
	})
}

func (s *appServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), store.RunFilter{Limit: 100})
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *appServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
