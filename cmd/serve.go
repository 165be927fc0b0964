package main

import (
	"context"
	"encoding/json"
	"errors"
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

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/pipeline"
	"github.com/sells-group/menu-cli/internal/store"
)

var servePort int

// menuRunner runs discovery for one business.
type menuRunner interface {
	Run(ctx context.Context, desc model.BusinessDescriptor) (*model.MenuDocument, error)
}

type routerOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type discoverRequest struct {
	BusinessID string `json:"business_id"`
	Save       bool   `json:"save"`
	model.BusinessDescriptor
}

type discoverResponse struct {
	Document *model.MenuDocument `json:"document"`
	Save     *store.SaveResult   `json:"save,omitempty"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the menu discovery HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		p, cleanup, err := pipeline.Build(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		r := newRouter(p, st, routerOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
		})

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newRouter mounts the health check and the /v1/menus API.
func newRouter(runner menuRunner, st store.Store, opts routerOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1/menus", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req discoverRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if err := req.Validate(); err != nil {
				writeError(w, http.StatusBadRequest, "name is required")
				return
			}
			if req.Save && req.BusinessID == "" {
				writeError(w, http.StatusBadRequest, "business_id is required when save is set")
				return
			}

			doc, err := runner.Run(r.Context(), req.BusinessDescriptor)
			if err != nil {
				zap.L().Error("menu discovery failed", zap.String("business", req.Name), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "discovery failed")
				return
			}

			resp := discoverResponse{Document: doc}
			if req.Save {
				res, err := st.SaveMenu(r.Context(), req.BusinessID, req.BusinessDescriptor, doc)
				if err != nil {
					zap.L().Error("menu save failed", zap.String("business_id", req.BusinessID), zap.Error(err))
					writeError(w, http.StatusInternalServerError, "save failed")
					return
				}
				resp.Save = res
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Get("/{businessID}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "businessID")
			rec, err := st.GetMenu(r.Context(), id)
			if err != nil {
				zap.L().Error("get menu", zap.String("business_id", id), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "lookup failed")
				return
			}
			if rec == nil {
				writeError(w, http.StatusNotFound, "menu not found")
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})

		r.Get("/{businessID}/runs", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "businessID")
			limit := 0
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
					return
				}
				limit = n
			}
			runs, err := st.ListRuns(r.Context(), id, limit)
			if err != nil {
				zap.L().Error("list runs", zap.String("business_id", id), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "lookup failed")
				return
			}
			if runs == nil {
				runs = []store.Run{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
