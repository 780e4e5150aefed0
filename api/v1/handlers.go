package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kythours/modelvol/internal/data"
	"github.com/kythours/modelvol/internal/reqid"
	"github.com/kythours/modelvol/internal/service"
)

// TaskHandler serves the task ledger and the active manifest.
type TaskHandler struct {
	l   *slog.Logger
	svc service.Tasks
}

func NewTaskHandler(l *slog.Logger, svc service.Tasks) *TaskHandler {
	return &TaskHandler{l: l, svc: svc}
}

type rwLogger struct {
	http.ResponseWriter
	status int
	bytes  int
	err    error
}

func (w *rwLogger) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *rwLogger) SetErr(err error) {
	w.err = err
}

func (w *rwLogger) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

type errorSetter interface {
	SetErr(error)
}

func markErr(w http.ResponseWriter, err error) {
	if es, ok := w.(errorSetter); ok {
		es.SetErr(err)
	}
}

// GetTasks lists ledger records, optionally filtered by ?state=.
func (th *TaskHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	state := data.TaskState(r.URL.Query().Get("state"))
	recs, err := th.svc.List(r.Context(), state)
	switch {
	case errors.Is(err, data.ErrBadState):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		reqid.Logger(r.Context(), th.l).Error("list tasks", "err", err)
		writeError(w, http.StatusInternalServerError, ErrUnknown)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// GetRunTasks lists the records of one run.
func (th *TaskHandler) GetRunTasks(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeError(w, http.StatusBadRequest, ErrRunID)
		return
	}
	recs, err := th.svc.ListByRun(r.Context(), id)
	switch {
	case errors.Is(err, data.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		reqid.Logger(r.Context(), th.l).Error("list run tasks", "run", id, "err", err)
		writeError(w, http.StatusInternalServerError, ErrUnknown)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// GetManifest returns the manifest the reconciler was started with.
func (th *TaskHandler) GetManifest(w http.ResponseWriter, r *http.Request) {
	m := th.svc.Manifest()
	if m == nil {
		m = data.Manifest{}
	}
	writeJSON(w, http.StatusOK, m)
}
