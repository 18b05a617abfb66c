package recon

import (
	"strings"

	"github.com/santirms/zupply-app-sub000/internal/integrations/meli"
	"github.com/santirms/zupply-app-sub000/internal/models"
)

// Некоторые "статусы" в фиде истории на самом деле substatus-подобные
// (ready_to_ship/printed и т.п.). Если у такой записи substatus пуст,
// копируем статус в detail, иначе этот сигнал вендора теряется.
var substatusLike = map[string]struct{}{
	models.DetailReadyToPrint:   {},
	models.DetailPrinted:        {},
	models.DetailOutForDelivery: {},
	models.DetailArrivingSoon:   {},
}

// NormalizeHistory converts history-feed rows into events. Rows without a
// resolvable date are dropped, never defaulted to "now".
func NormalizeHistory(rows []meli.RawHistoryEntry) []models.Event {
	var out []models.Event
	for _, row := range rows {
		if row.Date == nil || row.Status == "" {
			continue
		}

		detail := row.Substatus
		if detail == "" {
			if _, ok := substatusLike[row.Status]; ok {
				detail = row.Status
			}
		}

		out = append(out, models.Event{
			OccurredAt: row.Date.UTC(),
			Status:     row.Status,
			Detail:     detail,
			Origin:     models.OriginHistory,
			RemoteID:   row.RemoteID,
			Note:       row.Note,
			Location:   row.Location,
		})
	}
	return out
}

type checkpointRule struct {
	phrase string
	status string
	detail string
}

// Ordered, first match wins. "out for delivery" has to be checked before
// "delivery"/"delivered" substrings.
var checkpointRules = []checkpointRule{
	{"out for delivery", models.StatusShipped, models.DetailOutForDelivery},
	{"arriving soon", models.StatusShipped, models.DetailArrivingSoon},
	{"receiver absent", models.StatusNotDelivered, models.DetailReceiverAbsent},
	{"nobody at the address", models.StatusNotDelivered, models.DetailReceiverAbsent},
	{"delivery attempt failed", models.StatusNotDelivered, ""},
	{"delivered", models.StatusDelivered, ""},
	{"in transit", models.StatusShipped, ""},
	{"on its way", models.StatusShipped, ""},
	{"picked up by carrier", models.StatusShipped, ""},
}

// NormalizeCheckpoints maps free-text carrier checkpoints onto events through
// a fixed phrase table. Unmatched or dateless checkpoints are dropped.
func NormalizeCheckpoints(rt *meli.RawTracking) []models.Event {
	if rt == nil {
		return nil
	}

	var out []models.Event
	for _, cp := range rt.Checkpoints {
		if cp.Date == nil || cp.Description == "" {
			continue
		}

		low := strings.ToLower(cp.Description)
		for _, rule := range checkpointRules {
			if !strings.Contains(low, rule.phrase) {
				continue
			}
			desc := cp.Description
			out = append(out, models.Event{
				OccurredAt: cp.Date.UTC(),
				Status:     rule.status,
				Detail:     rule.detail,
				Origin:     models.OriginTracking,
				Note:       &desc,
			})
			break
		}
	}
	return out
}

// hasTransitMilestone reports whether the normalized history already covers
// the in-transit part of the shipment's life. When it does not, the
// checkpoint feed is worth the extra call.
func hasTransitMilestone(events []models.Event) bool {
	for _, e := range events {
		if e.Status == models.StatusShipped || e.Detail == models.DetailOutForDelivery {
			return true
		}
	}
	return false
}
