package recon

import (
	"time"

	"github.com/santirms/zupply-app-sub000/internal/models"
)

// NoiseConfig describes the vendor's nightly bulk status-reset job: a
// time-boxed window in which many shipments get stamped with a generic
// "rescheduled, reason unknown" detail, overwriting more specific incidents
// recorded hours earlier.
//
// Detection is time-of-day based, not a bulk-job signature. That is a known
// heuristic limitation: a legitimate late-evening reschedule inside the
// window is suppressed from canonical state too (it still lands in history).
type NoiseConfig struct {
	// GenericResetDetail is the low-information detail code the job stamps.
	GenericResetDetail string

	// Window in the platform's local time, [StartHour, EndHour).
	// EndHour goes up to 24; windows crossing midnight are not supported.
	WindowStartHour int
	WindowEndHour   int

	// Freshness: only canonical states set within this long are protected.
	Freshness time.Duration

	// SpecificDetails are the incident codes worth protecting.
	SpecificDetails []string

	// Location the window hours are interpreted in.
	Location *time.Location
}

func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		GenericResetDetail: models.DetailRescheduled,
		WindowStartHour:    21,
		WindowEndHour:      24,
		Freshness:          4 * time.Hour,
		SpecificDetails:    defaultSpecificDetails(),
		Location:           time.UTC,
	}
}

type NoiseFilter struct {
	cfg      NoiseConfig
	specific map[string]struct{}
}

func NewNoiseFilter(cfg NoiseConfig) *NoiseFilter {
	def := DefaultNoiseConfig()
	if cfg.GenericResetDetail == "" {
		cfg.GenericResetDetail = def.GenericResetDetail
	}
	if cfg.WindowStartHour <= 0 {
		cfg.WindowStartHour = def.WindowStartHour
	}
	if cfg.WindowEndHour <= 0 {
		cfg.WindowEndHour = def.WindowEndHour
	}
	// Окно через полночь (22→2) не поддерживаем: такая конфигурация
	// считается ошибочной, берём дефолтное окно целиком.
	if cfg.WindowStartHour >= cfg.WindowEndHour || cfg.WindowEndHour > 24 {
		cfg.WindowStartHour = def.WindowStartHour
		cfg.WindowEndHour = def.WindowEndHour
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = def.Freshness
	}
	if len(cfg.SpecificDetails) == 0 {
		cfg.SpecificDetails = def.SpecificDetails
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}

	f := &NoiseFilter{cfg: cfg, specific: make(map[string]struct{}, len(cfg.SpecificDetails))}
	for _, d := range cfg.SpecificDetails {
		f.specific[d] = struct{}{}
	}
	return f
}

// Suppress decides whether a candidate canonical state must NOT be promoted
// this cycle. All four conditions have to hold: generic reset detail, inside
// the reset window, current canonical is a specific incident, and that
// incident is fresh. Merged history persists either way.
func (f *NoiseFilter) Suppress(now time.Time, candidate models.Canonical, rec *models.ShipmentRecord) bool {
	if candidate.Detail != f.cfg.GenericResetDetail {
		return false
	}
	if !f.inWindow(now) {
		return false
	}
	if _, ok := f.specific[rec.CanonicalDetail]; !ok {
		return false
	}
	if rec.CanonicalAt == nil {
		return false
	}
	return now.Sub(*rec.CanonicalAt) < f.cfg.Freshness
}

func (f *NoiseFilter) inWindow(now time.Time) bool {
	h := now.In(f.cfg.Location).Hour()
	return h >= f.cfg.WindowStartHour && h < f.cfg.WindowEndHour
}
