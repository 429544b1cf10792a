package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/adsync/internal/alerts"
	"github.com/AngelCh415/adsync/internal/ingest"
	"github.com/AngelCh415/adsync/internal/metrics"
	"github.com/AngelCh415/adsync/internal/models"
	"github.com/AngelCh415/adsync/internal/platforms"
	"github.com/AngelCh415/adsync/internal/store"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type ctxKey struct{}

const tenantHeader = "X-Tenant-ID"

// tenant requires the X-Tenant-ID header and stores it on the context.
func tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := strings.TrimSpace(r.Header.Get(tenantHeader))
		if t == "" {
			writeError(w, badRequest("%s header required", tenantHeader))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, t)))
	})
}

func tenantID(r *http.Request) string {
	t, _ := r.Context().Value(ctxKey{}).(string)
	return t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}

func statusOf(err error) int {
	var sErr *ingest.SyncError
	var apiErr *platforms.APIError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, alerts.ErrPresetRule),
		errors.Is(err, alerts.ErrInvalidTransition),
		errors.Is(err, ingest.ErrAccountBusy):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, alerts.ErrInvalidRule),
		errors.Is(err, platforms.ErrUnsupportedPlatform):
		return http.StatusBadRequest
	case errors.Is(err, platforms.ErrCredentialInvalid),
		errors.As(err, &sErr),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid body: %v", err)
	}
	return nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non negative integer", name)
	}
	return n, nil
}

func platformParam(r *http.Request) (models.Platform, error) {
	p, err := metrics.ParsePlatformFilter(r.URL.Query().Get("platform"))
	if err != nil {
		return "", badRequest("%v", err)
	}
	return p, nil
}

// window reads from/to as YYYY-MM-DD; missing bounds default to the trailing
// 30 days. to covers its whole day.
func window(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	w := models.LastNDays(now, 30)
	from, to := w.Start, w.End
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := models.ParseDay(v)
		if err != nil {
			return from, to, badRequest("from must be YYYY-MM-DD")
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := models.ParseDay(v)
		if err != nil {
			return from, to, badRequest("to must be YYYY-MM-DD")
		}
		to = models.EndOfDayUTC(t)
	}
	if to.Before(from) {
		return from, to, badRequest("to is before from")
	}
	return from, to, nil
}
