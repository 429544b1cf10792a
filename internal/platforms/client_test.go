package platforms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/adsync/internal/models"
)

func TestGetJSONReturnsAPIErrorOn500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := getJSON(context.Background(), NewHTTPClient(2*time.Second), models.PlatformFacebook, srv.URL, nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Contains(t, apiErr.Body, "internal error")
	assert.False(t, errors.Is(err, ErrCredentialInvalid))
}

func TestGetJSONReturnsAPIErrorOn404(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	err := getJSON(context.Background(), NewHTTPClient(2*time.Second), models.PlatformTikTok, srv.URL, nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, models.PlatformTikTok, apiErr.Platform)
}

func TestGetJSONUnauthorizedIsCredentialInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := getJSON(context.Background(), NewHTTPClient(2*time.Second), models.PlatformGoogleAds, srv.URL, nil, nil)
	assert.ErrorIs(t, err, ErrCredentialInvalid)
}

func TestGetJSONTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	err := getJSON(context.Background(), NewHTTPClient(50*time.Millisecond), models.PlatformLineAds, srv.URL, nil, nil)
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestGetJSONHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := getJSON(ctx, NewHTTPClient(5*time.Second), models.PlatformFacebook, srv.URL, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetJSONRejectsEmptyURL(t *testing.T) {
	err := getJSON(context.Background(), NewHTTPClient(time.Second), models.PlatformFacebook, "", nil, nil)
	assert.Error(t, err)
}

func TestClipKeepsOneRowPerDayInsideRange(t *testing.T) {
	r := models.LastNDays(time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC), 2)
	rows := []models.MetricData{
		models.NewMetricData(time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), models.Counters{Clicks: 1}),
		models.NewMetricData(time.Date(2024, 5, 19, 0, 0, 0, 0, time.UTC), models.Counters{Clicks: 2}),
		models.NewMetricData(time.Date(2024, 5, 18, 0, 0, 0, 0, time.UTC), models.Counters{Clicks: 3}),
		models.NewMetricData(time.Date(2024, 5, 19, 0, 0, 0, 0, time.UTC), models.Counters{Clicks: 4}),
		models.NewMetricData(time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC), models.Counters{Clicks: 5}),
	}

	out := clip(rows, r)
	require.Len(t, out, 2)
	assert.Equal(t, int64(3), out[0].Clicks)
	assert.Equal(t, int64(4), out[1].Clicks)
}

func TestParseTimeFormats(t *testing.T) {
	want := time.Date(2024, 5, 19, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-05-19", "20240519", "2024-05-19 00:00:00", "2024-05-19T00:00:00Z"} {
		assert.Equal(t, want, parseTime(s), s)
	}
	assert.True(t, parseTime("yesterday").IsZero())
	assert.Nil(t, optTime(""))
}
