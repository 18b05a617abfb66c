package recon

import (
	"time"

	"github.com/santirms/zupply-app-sub000/internal/models"
)

// Приоритеты и наборы статусов — реверс-инжиниринг поведения вендора,
// не его контракт. Поэтому таблицы конфигурируемые, а не константы.
type ResolverConfig struct {
	TerminalStatuses []string
	SpecificDetails  []string

	// IncidentDetails — подмножество SpecificDetails: коды сорвавшейся
	// доставки. Только они становятся sticky: транзитный прогресс вроде
	// out_for_delivery в скоринге участвует, но переживать сбросы не должен.
	IncidentDetails []string

	// GenericResetDetail mirrors NoiseConfig: the sticky re-assert rule keys
	// off the same code.
	GenericResetDetail string

	// RecencyWindow: specific details get a score bonus when this fresh.
	RecencyWindow time.Duration
}

func defaultIncidentDetails() []string {
	return []string{
		models.DetailReceiverAbsent,
		models.DetailBadAddress,
		models.DetailInaccessible,
		models.DetailAgencyClosed,
		models.DetailBuyerReschedule,
	}
}

func defaultSpecificDetails() []string {
	return append(defaultIncidentDetails(),
		models.DetailOutForDelivery,
		models.DetailArrivingSoon,
	)
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		TerminalStatuses:   []string{models.StatusDelivered, models.StatusCancelled},
		SpecificDetails:    defaultSpecificDetails(),
		IncidentDetails:    defaultIncidentDetails(),
		GenericResetDetail: models.DetailRescheduled,
		RecencyWindow:      48 * time.Hour,
	}
}

const (
	scoreTerminal = 100
	scoreSpecific = 50
	recencyBonus  = 10
	scoreGeneric  = 10
)

type Resolver struct {
	cfg      ResolverConfig
	terminal map[string]struct{}
	specific map[string]struct{}
	incident map[string]struct{}
}

func NewResolver(cfg ResolverConfig) *Resolver {
	def := DefaultResolverConfig()
	if len(cfg.TerminalStatuses) == 0 {
		cfg.TerminalStatuses = def.TerminalStatuses
	}
	if len(cfg.SpecificDetails) == 0 {
		cfg.SpecificDetails = def.SpecificDetails
	}
	if len(cfg.IncidentDetails) == 0 {
		cfg.IncidentDetails = def.IncidentDetails
	}
	if cfg.GenericResetDetail == "" {
		cfg.GenericResetDetail = def.GenericResetDetail
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = def.RecencyWindow
	}

	r := &Resolver{
		cfg:      cfg,
		terminal: make(map[string]struct{}, len(cfg.TerminalStatuses)),
		specific: make(map[string]struct{}, len(cfg.SpecificDetails)),
		incident: make(map[string]struct{}, len(cfg.IncidentDetails)),
	}
	for _, s := range cfg.TerminalStatuses {
		r.terminal[s] = struct{}{}
	}
	for _, d := range cfg.SpecificDetails {
		r.specific[d] = struct{}{}
	}
	for _, d := range cfg.IncidentDetails {
		r.incident[d] = struct{}{}
	}
	return r
}

func (r *Resolver) IsTerminal(status string) bool {
	_, ok := r.terminal[status]
	return ok
}

func (r *Resolver) score(now time.Time, status, detail string, at time.Time) int {
	if r.IsTerminal(status) {
		return scoreTerminal
	}
	if _, ok := r.specific[detail]; ok {
		s := scoreSpecific
		if now.Sub(at) < r.cfg.RecencyWindow {
			s += recencyBonus
		}
		return s
	}
	return scoreGeneric
}

// Resolve computes the canonical triple from the merged history plus the
// latest snapshot, honoring anti-regression and sticky incident flags.
func (r *Resolver) Resolve(now time.Time, history []models.Event, snap *snapshotCandidate, rec *models.ShipmentRecord) models.Canonical {
	var (
		best      models.Canonical
		bestScore = -1
	)
	consider := func(status, detail string, at time.Time) {
		s := r.score(now, status, detail, at)
		if s > bestScore || (s == bestScore && at.After(best.At)) {
			best = models.Canonical{Status: status, Detail: detail, At: at}
			bestScore = s
		}
	}

	for _, e := range history {
		consider(e.Status, e.Detail, e.OccurredAt)
	}
	if snap != nil && snap.Status != "" {
		consider(snap.Status, snap.Detail, snap.At)
	}

	if best.IsZero() {
		return r.previous(rec)
	}

	// Anti-regression: терминальный canonical не откатываем, даже если
	// вендор (гонка в его API) вернул "свежий" snapshot со старым статусом.
	if r.IsTerminal(rec.CanonicalStatus) && !r.IsTerminal(best.Status) {
		return r.previous(rec)
	}

	// Sticky re-assert: a confirmed incident outranks the generic reset code,
	// independent of the history-level noise filter. Incident codes are all
	// failed-attempt codes, so not_delivered is the status they belong to.
	if best.Detail == r.cfg.GenericResetDetail && !r.IsTerminal(best.Status) {
		if sticky := r.firstSticky(rec); sticky != "" {
			prev := r.previous(rec)
			if prev.Detail == sticky {
				return prev
			}
			return models.Canonical{Status: models.StatusNotDelivered, Detail: sticky, At: best.At}
		}
	}

	return best
}

// NextSticky returns the record's confirmed incident flags after this cycle:
// a newly resolved incident is added, and a terminal status supersedes
// (clears) everything. Transit details never become sticky.
func (r *Resolver) NextSticky(rec *models.ShipmentRecord, resolved models.Canonical) []string {
	if r.IsTerminal(resolved.Status) {
		return nil
	}
	out := append([]string(nil), rec.StickyDetails...)
	if _, ok := r.incident[resolved.Detail]; ok && !rec.HasSticky(resolved.Detail) {
		out = append(out, resolved.Detail)
	}
	return out
}

func (r *Resolver) previous(rec *models.ShipmentRecord) models.Canonical {
	c := models.Canonical{Status: rec.CanonicalStatus, Detail: rec.CanonicalDetail}
	if rec.CanonicalAt != nil {
		c.At = *rec.CanonicalAt
	}
	return c
}

// firstSticky игнорирует флаги вне incident-набора: в старых записях могли
// осесть транзитные коды, их ре-ассертить нельзя.
func (r *Resolver) firstSticky(rec *models.ShipmentRecord) string {
	for _, d := range rec.StickyDetails {
		if _, ok := r.incident[d]; ok {
			return d
		}
	}
	return ""
}

// snapshotCandidate is the snapshot's current state competing with history
// events under the same scoring.
type snapshotCandidate struct {
	Status string
	Detail string
	At     time.Time
}
