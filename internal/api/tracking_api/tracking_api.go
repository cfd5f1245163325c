// Package tracking_api serves the public open and click endpoints embedded
// in sent mail. Nothing here ever answers with an error status.
package tracking_api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/BearBump/CampaignBox/internal/services/tracking"
	"github.com/go-chi/chi/v5"
)

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type Recorder interface {
	RecordOpen(ctx context.Context, h tracking.Hit)
	RecordClick(ctx context.Context, h tracking.Hit, rawTarget string) string
}

type TrackingAPI struct {
	svc         Recorder
	fallbackURL string
}

// New builds the handlers. fallbackURL is where a click goes when the
// recorder cannot answer and the link target is unusable.
func New(svc Recorder, fallbackURL string) *TrackingAPI {
	return &TrackingAPI{svc: svc, fallbackURL: fallbackURL}
}

func (a *TrackingAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/open/{campaignId}/{trackingId}", a.open)
	r.Get("/click/{campaignId}/{trackingId}", a.click)
	return r
}

func (a *TrackingAPI) open(w http.ResponseWriter, r *http.Request) {
	a.recordOpen(r)

	h := w.Header()
	h.Set("Content-Type", "image/gif")
	h.Set("Content-Length", strconv.Itoa(len(transparentGIF)))
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentGIF)
}

func (a *TrackingAPI) click(w http.ResponseWriter, r *http.Request) {
	// Query().Get already percent-decodes u.
	target := a.recordClick(r, r.URL.Query().Get("u"))

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *TrackingAPI) recordOpen(r *http.Request) {
	defer recoverHit("open")
	a.svc.RecordOpen(r.Context(), hitFrom(r))
}

func (a *TrackingAPI) recordClick(r *http.Request, raw string) (target string) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("tracking recorder panicked", "kind", "click", "panic", v)
			var ok bool
			if target, ok = tracking.RedirectTarget(raw); !ok {
				target = a.fallbackURL
			}
		}
	}()
	return a.svc.RecordClick(r.Context(), hitFrom(r), raw)
}

func recoverHit(kind string) {
	if v := recover(); v != nil {
		slog.Error("tracking recorder panicked", "kind", kind, "panic", v)
	}
}

// hitFrom never fails: a malformed campaign id becomes 0 and is rejected by
// the recorder like any unknown id.
func hitFrom(r *http.Request) tracking.Hit {
	cid, _ := strconv.ParseUint(chi.URLParam(r, "campaignId"), 10, 64)
	return tracking.Hit{
		CampaignID: cid,
		TrackingID: chi.URLParam(r, "trackingId"),
		UserAgent:  r.UserAgent(),
		IP:         clientIP(r),
	}
}

// clientIP strips the port. Behind middleware.RealIP RemoteAddr may already
// be a bare address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
