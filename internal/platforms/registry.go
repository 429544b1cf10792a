package platforms

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/AngelCh415/adsync/internal/config"
	"github.com/AngelCh415/adsync/internal/models"
)

// Registry resolves a platform identifier to its adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Platform]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.Platform]Adapter)}
}

func (r *Registry) Register(p models.Platform, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[p] = a
}

// Get matches name case-insensitively ("facebook" and "FACEBOOK" are the same).
func (r *Registry) Get(name string) (Adapter, error) {
	p, ok := models.ParsePlatform(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, name)
	}
	return a, nil
}

// Platforms lists the registered platforms in sync order.
func (r *Registry) Platforms() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Platform
	for _, p := range models.Platforms {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Default wires the five production adapters from configuration.
func Default(cfg config.Config, hc *http.Client) *Registry {
	r := NewRegistry()
	r.Register(models.PlatformGoogleAds, NewGoogleAds(hc, cfg.GoogleAdsURL, cfg.GoogleAdsDeveloperToken))
	r.Register(models.PlatformFacebook, NewFacebook(hc, cfg.FacebookURL, cfg.FacebookAPIVersion))
	r.Register(models.PlatformGoogleAnalytics, NewAnalytics(hc, cfg.AnalyticsURL))
	r.Register(models.PlatformTikTok, NewTikTok(hc, tiktokBase(cfg)))
	r.Register(models.PlatformLineAds, NewLineAds(hc, cfg.LineAdsURL, cfg.LineAdsUseMock))
	return r
}

func tiktokBase(cfg config.Config) string {
	switch {
	case cfg.TikTokURL != "":
		return cfg.TikTokURL
	case cfg.TikTokUseSandbox:
		return TikTokSandboxURL
	default:
		return TikTokProductionURL
	}
}
