// Package platforms contains one adapter per ad or analytics platform. Every
// adapter maps native payloads to the unified campaign and daily metric
// shapes; none of them persist anything.
package platforms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/adsync/internal/models"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrCredentialInvalid   = errors.New("credential invalid")
)

type Adapter interface {
	// ValidateCredentials reports false for rejected tokens. An error means the
	// check itself could not be made.
	ValidateCredentials(ctx context.Context, creds models.Credentials) (bool, error)
	FetchCampaigns(ctx context.Context, creds models.Credentials) ([]models.CampaignData, error)
	// FetchMetrics returns at most one row per UTC day inside r. id is the
	// campaign external id, or the property id for analytics platforms.
	FetchMetrics(ctx context.Context, creds models.Credentials, id string, r models.DateRange) ([]models.MetricData, error)
}

// APIError is a non-2xx answer or an error envelope from a platform API.
type APIError struct {
	Platform models.Platform
	Status   int
	Code     int
	Body     string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s api: status=%d code=%d body=%s", e.Platform, e.Status, e.Code, e.Body)
	}
	return fmt.Sprintf("%s api: status=%d body=%s", e.Platform, e.Status, e.Body)
}

func (e *APIError) Unauthorized() bool { return e.Status == 401 || e.Status == 403 }

// Is lets errors.Is(err, ErrCredentialInvalid) match rejected tokens.
func (e *APIError) Is(target error) bool {
	return target == ErrCredentialInvalid && e.Unauthorized()
}

// rejected distinguishes a token the platform refused from any other failure.
func rejected(err error) (bool, error) {
	if errors.Is(err, ErrCredentialInvalid) {
		return false, nil
	}
	return false, err
}

// clip keeps rows inside r, one per day (the last one reported wins), sorted.
func clip(rows []models.MetricData, r models.DateRange) []models.MetricData {
	first := models.DayUTC(r.Start)
	byDay := make(map[time.Time]models.MetricData, len(rows))
	for _, md := range rows {
		md.Date = models.DayUTC(md.Date)
		if md.Date.IsZero() || md.Date.Before(first) || md.Date.After(r.End) {
			continue
		}
		byDay[md.Date] = md
	}
	out := make([]models.MetricData, 0, len(byDay))
	for _, md := range byDay {
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func num(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func integer(s string) int64 { return int64(num(s)) }

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	models.DateLayout,
	"20060102",
}

// parseTime accepts the date formats the platforms emit; zero on failure.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func optTime(s string) *time.Time {
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

func optFloat(f float64) *float64 { return &f }

func day(t time.Time) string { return t.UTC().Format(models.DateLayout) }

// MockSource is implemented by adapters that may serve generated data.
type MockSource interface {
	Mock() bool
}

// IsMock reports whether a serves generated data.
func IsMock(a Adapter) bool {
	m, ok := a.(MockSource)
	return ok && m.Mock()
}
