package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/adsync/internal/models"
)

func TestAnalyticsFetchMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/properties/123:runReport", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body struct {
			DateRanges []struct {
				StartDate string `json:"startDate"`
				EndDate   string `json:"endDate"`
			} `json:"dateRanges"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.DateRanges, 1)
		assert.Equal(t, "2024-05-18", body.DateRanges[0].StartDate)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rows":[
			{"dimensionValues":[{"value":"20240519"}],"metricValues":[
				{"value":"120"},{"value":"100"},{"value":"40"},{"value":"500"},{"value":"0.55"},{"value":"3"},{"value":"150.5"}]},
			{"dimensionValues":[{"value":"20240501"}],"metricValues":[
				{"value":"1"},{"value":"1"},{"value":"1"},{"value":"1"},{"value":"0"},{"value":"0"},{"value":"0"}]}
		]}`))
	}))
	defer srv.Close()

	a := NewAnalytics(srv.Client(), srv.URL)
	rows, err := a.FetchMetrics(context.Background(), models.Credentials{AccessToken: "tok", AccountID: "123"}, "", window)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	m := rows[0]
	require.NotNil(t, m.Web)
	assert.Equal(t, int64(120), m.Web.Sessions)
	assert.Equal(t, int64(100), m.Web.ActiveUsers)
	assert.Equal(t, int64(500), m.Web.PageViews)
	assert.Equal(t, int64(100), m.Impressions)
	assert.Equal(t, int64(120), m.Clicks)
	assert.InDelta(t, 150.5, m.Revenue, 1e-9)
}

func TestAnalyticsErrorsBecomeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"User does not have sufficient permissions","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	a := NewAnalytics(srv.Client(), srv.URL)
	creds := models.Credentials{AccessToken: "tok", AccountID: "properties/123"}

	_, err := a.FetchMetrics(context.Background(), creds, "123", window)
	assert.ErrorIs(t, err, ErrCredentialInvalid)

	ok, err := a.ValidateCredentials(context.Background(), creds)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnalyticsHasNoCampaigns(t *testing.T) {
	out, err := NewAnalytics(nil, "").FetchCampaigns(context.Background(), models.Credentials{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
