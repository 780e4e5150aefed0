package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/kythours/modelvol/api/v1"
	"github.com/kythours/modelvol/internal/auth"
	"github.com/kythours/modelvol/internal/service"
)

// ReadyFunc reports whether the instance can serve traffic.
type ReadyFunc func(ctx context.Context) error

// Options configures the ops router.
type Options struct {
	Token string
	Ready ReadyFunc
}

// New sets up the ops routes and required middleware.
func New(logger *slog.Logger, svc service.Tasks, opts Options) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Error("write healthz response", "err", err)
		}
	}).Methods("GET")

	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Ready(ctx); err != nil {
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			logger.Error("write readyz response", "err", err)
		}
	}).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	th := v1.NewTaskHandler(logger, svc)

	r.Use(v1.RequestID)
	r.Use(th.Log)
	r.Use(auth.Middleware(opts.Token))

	api := r.PathPrefix("/v1").Subrouter()
	get := api.Methods("GET").Subrouter()
	get.HandleFunc("/tasks", th.GetTasks)
	get.HandleFunc("/runs/{id}/tasks", th.GetRunTasks)
	get.HandleFunc("/manifest", th.GetManifest)

	return r
}
