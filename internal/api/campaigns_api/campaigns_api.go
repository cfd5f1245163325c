package campaigns_api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/CampaignBox/internal/apperrors"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type CampaignService interface {
	Create(ctx context.Context, in models.CampaignInput) (*models.Campaign, error)
	Get(ctx context.Context, id uint64) (*models.Campaign, error)
	Update(ctx context.Context, id uint64, in models.CampaignInput) (*models.Campaign, error)
	Schedule(ctx context.Context, id uint64, at time.Time) (*models.Campaign, error)
}

type Dispatcher interface {
	Send(ctx context.Context, campaignID uint64, listIDs []uint64) (models.DispatchResult, error)
	ResendToNonOpeners(ctx context.Context, campaignID uint64) (models.DispatchResult, error)
	TestSend(ctx context.Context, campaignID uint64, to string) error
}

type AnalyticsReader interface {
	Get(ctx context.Context, campaignID uint64) (*models.Analytics, error)
}

const maxBodyBytes = 4 << 20

type CampaignsAPI struct {
	campaigns CampaignService
	engine    Dispatcher
	analytics AnalyticsReader
	token     string
}

// New wires the operator API. An empty token leaves the routes open.
func New(campaigns CampaignService, engine Dispatcher, analytics AnalyticsReader, token string) *CampaignsAPI {
	return &CampaignsAPI{campaigns: campaigns, engine: engine, analytics: analytics, token: token}
}

func (a *CampaignsAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(a.requireOperator)

	r.Post("/", a.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", a.get)
		r.Put("/", a.update)
		r.Post("/schedule", a.schedule)
		r.Post("/send", a.send)
		r.Post("/test", a.testSend)
		r.Post("/resend-io", a.resend)
		r.Get("/analytics", a.getAnalytics)
	})
	return r
}

func (a *CampaignsAPI) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *CampaignsAPI) create(w http.ResponseWriter, r *http.Request) {
	var in models.CampaignInput
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	c, err := a.campaigns.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *CampaignsAPI) get(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := a.campaigns.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *CampaignsAPI) update(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in models.CampaignInput
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	c, err := a.campaigns.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type scheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt"`
}

func (a *CampaignsAPI) schedule(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req scheduleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := a.campaigns.Schedule(r.Context(), id, req.ScheduledAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type sendRequest struct {
	ListIDs []uint64 `json:"listIds"`
}

func (a *CampaignsAPI) send(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req sendRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := a.engine.Send(r.Context(), id, req.ListIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type testSendRequest struct {
	TestEmail string `json:"testEmail"`
}

func (a *CampaignsAPI) testSend(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req testSendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.TestEmail) == "" {
		writeError(w, apperrors.Validation("testEmail is required"))
		return
	}
	if err := a.engine.TestSend(r.Context(), id, strings.TrimSpace(req.TestEmail)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (a *CampaignsAPI) resend(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.engine.ResendToNonOpeners(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *CampaignsAPI) getAnalytics(w http.ResponseWriter, r *http.Request) {
	id, err := campaignID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := a.analytics.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func campaignID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Validation("invalid campaign id")
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperrors.Validation("invalid JSON body: %v", err)
	}
	return nil
}

// decodeOptional accepts an empty body.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperrors.Validation("invalid JSON body: %v", err)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err.Error())
		writeJSON(w, status, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	if ve, ok := apperrors.AsValidation(err); ok {
		if ve.Unprocessable {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
