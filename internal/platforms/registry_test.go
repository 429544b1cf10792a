package platforms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/adsync/internal/config"
	"github.com/AngelCh415/adsync/internal/models"
)

func TestDefaultRegistersEveryPlatform(t *testing.T) {
	r := Default(config.Config{LineAdsUseMock: true}, NewHTTPClient(0))
	assert.Equal(t, models.Platforms, r.Platforms())

	for _, name := range []string{"facebook", "FACEBOOK", " google_ads ", "tiktok", "LINE_ADS", "google_analytics"} {
		a, err := r.Get(name)
		require.NoError(t, err, name)
		assert.NotNil(t, a)
	}
}

func TestGetUnknownPlatform(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("myspace")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = r.Get("facebook")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestTikTokBase(t *testing.T) {
	assert.Equal(t, TikTokProductionURL, tiktokBase(config.Config{}))
	assert.Equal(t, TikTokSandboxURL, tiktokBase(config.Config{TikTokUseSandbox: true}))
	assert.Equal(t, "http://local", tiktokBase(config.Config{TikTokURL: "http://local", TikTokUseSandbox: true}))
}
