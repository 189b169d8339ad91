package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"backing-lab/internal/domain"
	"backing-lab/internal/orchestrator"
	"backing-lab/internal/reporting"
	"backing-lab/internal/sources"
	"backing-lab/internal/storage"
)

// DefaultRunsLimit is the page size of the runs endpoint when no limit is given.
const DefaultRunsLimit = 20

// MaxRunsLimit caps the runs endpoint page size.
const MaxRunsLimit = 500

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

type instrumentBody struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Chain           string    `json:"chain,omitempty"`
	TrackedSymbol   string    `json:"trackedSymbol,omitempty"`
	ReferenceSymbol string    `json:"referenceSymbol,omitempty"`
	StartDate       time.Time `json:"startDate"`
	StartDay        int       `json:"startDay"`
	EndDay          int       `json:"endDay"`
}

type projectionBody struct {
	RunID        string                  `json:"runId"`
	InstrumentID string                  `json:"instrumentId"`
	ComputedAt   time.Time               `json:"computedAt"`
	Summary      reporting.Summary       `json:"summary"`
	Points       []domain.ProjectedPoint `json:"points"`
}

type refreshBody struct {
	Run     *domain.RefreshRun       `json:"run"`
	Summary reporting.Summary        `json:"summary"`
	Models  []domain.RegressionModel `json:"models"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"time":        s.now().UTC(),
		"instruments": len(s.svc.Instruments()),
	})
}

func (s *Server) listInstruments(w http.ResponseWriter, r *http.Request) {
	insts := s.svc.Instruments()
	out := make([]instrumentBody, len(insts))
	for i, inst := range insts {
		out[i] = instrumentBody{
			ID:              inst.ID,
			Name:            inst.Name,
			Chain:           inst.Chain,
			TrackedSymbol:   inst.TrackedSymbol,
			ReferenceSymbol: inst.ReferenceSymbol,
			StartDate:       inst.Projection.StartDate,
			StartDay:        inst.Projection.StartDay,
			EndDay:          inst.Projection.EndDay,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getProjection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "csv" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("format must be json or csv"))
		return
	}

	snap, err := s.svc.Latest(r.Context(), id)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=\""+id+"-projection.csv\"")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(reporting.RenderCSV(snap.Points)))
		return
	}

	writeJSON(w, http.StatusOK, projectionBody{
		RunID:        snap.RunID,
		InstrumentID: snap.InstrumentID,
		ComputedAt:   snap.ComputedAt,
		Summary:      reporting.Summarize(snap.Points),
		Points:       snap.Points,
	})
}

func (s *Server) postRefresh(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx := r.Context()
	if s.config.RefreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RefreshTimeout)
		defer cancel()
	}

	out, err := s.svc.Refresh(ctx, id)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, refreshBody{
		Run:     out.Run,
		Summary: reporting.Summarize(out.Snapshot.Points),
		Models:  []domain.RegressionModel{out.Result.Exponential, out.Result.Linear},
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit := DefaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, MaxRunsLimit)
	}

	runs, err := s.svc.Runs(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	if runs == nil {
		runs = []*domain.RefreshRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrUnknownInstrument), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sources.ErrUpstream), errors.Is(err, sources.ErrUnknownInstrument):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	entry := s.log.WithError(err).WithField("request_id", RequestID(r.Context()))
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), RequestID: RequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
