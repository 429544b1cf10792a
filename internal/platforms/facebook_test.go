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

func TestFacebookFetchCampaigns(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		switch r.URL.Query().Get("after") {
		case "":
			assert.Equal(t, "/v18.0/act_42/campaigns", r.URL.Path)
			w.Write([]byte(`{"data":[{"id":"1","name":"Lead","status":"ACTIVE","daily_budget":"5000","start_time":"2024-01-01T00:00:00+0000"}],
				"paging":{"next":"` + srv.URL + `/v18.0/act_42/campaigns?access_token=tok&after=c1"}}`))
		default:
			w.Write([]byte(`{"data":[{"id":"2","name":"Old","status":"ARCHIVED","lifetime_budget":"12345"},{"id":"3","name":"Free","status":"WEIRD"}]}`))
		}
	}))
	defer srv.Close()

	f := NewFacebook(srv.Client(), srv.URL, "v18.0")
	out, err := f.FetchCampaigns(context.Background(), models.Credentials{AccessToken: "tok", AccountID: "42"})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, models.CampaignActive, out[0].Status)
	require.NotNil(t, out[0].Budget)
	assert.Equal(t, 50.0, *out[0].Budget)
	require.NotNil(t, out[0].StartDate)

	assert.Equal(t, models.CampaignDeleted, out[1].Status)
	assert.InDelta(t, 123.45, *out[1].Budget, 1e-9)

	assert.Equal(t, models.CampaignPaused, out[2].Status)
	assert.Nil(t, out[2].Budget)
}

func TestFacebookFetchMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v18.0/777/insights", r.URL.Path)
		var tr map[string]string
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("time_range")), &tr))
		assert.Equal(t, "2024-05-18", tr["since"])
		assert.Equal(t, "2024-05-20", tr["until"])
		assert.Equal(t, "1", r.URL.Query().Get("time_increment"))
		w.Write([]byte(`{"data":[{"date_start":"2024-05-19","impressions":"2000","clicks":"40","spend":"80.00",
			"conversions":[{"action_type":"lead","value":"3"},{"action_type":"purchase","value":"1"}],
			"purchase_roas":[{"action_type":"omni_purchase","value":"2.5"}]}]}`))
	}))
	defer srv.Close()

	f := NewFacebook(srv.Client(), srv.URL, "v18.0")
	rows, err := f.FetchMetrics(context.Background(), models.Credentials{AccessToken: "tok"}, "777", window)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 4.0, rows[0].Conversions)
	assert.InDelta(t, 200.0, rows[0].Revenue, 1e-9)
	assert.InDelta(t, 2.0, rows[0].CTR, 1e-9)
	assert.InDelta(t, 2.5, rows[0].ROAS, 1e-9)
}

func TestFacebookValidateOAuthException(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	f := NewFacebook(srv.Client(), srv.URL, "v18.0")
	ok, err := f.ValidateCredentials(context.Background(), models.Credentials{AccessToken: "bad"})
	require.NoError(t, err)
	assert.False(t, ok)
}
