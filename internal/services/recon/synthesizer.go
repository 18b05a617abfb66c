package recon

import (
	"time"

	"github.com/santirms/zupply-app-sub000/internal/integrations/meli"
	"github.com/santirms/zupply-app-sub000/internal/models"
)

type milestone struct {
	status string
	detail string
	at     func(*meli.Snapshot) *time.Time
}

// Fixed forward walk of the shipment lifecycle, with the not_delivered /
// cancelled side branches at the end.
var milestones = []milestone{
	{models.StatusHandling, "", func(s *meli.Snapshot) *time.Time { return s.DateCreated }},
	{models.StatusReadyToShip, models.DetailReadyToPrint, func(s *meli.Snapshot) *time.Time { return s.DateReadyToShip }},
	{models.StatusReadyToShip, models.DetailPrinted, func(s *meli.Snapshot) *time.Time { return s.DateFirstPrinted }},
	{models.StatusHandling, "", func(s *meli.Snapshot) *time.Time { return s.DateHandling }},
	{models.StatusShipped, "", func(s *meli.Snapshot) *time.Time { return s.DateShipped }},
	{models.StatusNotDelivered, "", func(s *meli.Snapshot) *time.Time { return s.DateNotDelivered }},
	{models.StatusDelivered, "", func(s *meli.Snapshot) *time.Time { return s.DateDelivered }},
	{models.StatusCancelled, "", func(s *meli.Snapshot) *time.Time { return s.DateCancelled }},
}

// SynthesizeFromSnapshot derives a best-effort event sequence from a
// snapshot's named milestone dates. Called only when the history feed yielded
// zero events; guarantees at least one dated event whenever the snapshot
// carries a known current status, even with the history API broken.
func SynthesizeFromSnapshot(snap *meli.Snapshot, now time.Time) []models.Event {
	if snap == nil {
		return nil
	}

	var out []models.Event
	for _, m := range milestones {
		ts := m.at(snap)
		if ts == nil {
			continue
		}
		detail := m.detail
		// Snapshot's current substatus belongs to the milestone matching the
		// current status, not to every synthesized step.
		if m.status == snap.Status && snap.Substatus != "" {
			detail = snap.Substatus
		}
		out = append(out, models.Event{
			OccurredAt: ts.UTC(),
			Status:     m.status,
			Detail:     detail,
			Origin:     models.OriginSnapshotSynth,
		})
	}
	if len(out) > 0 {
		return out
	}

	if snap.Status == "" {
		return nil
	}

	// Ни одной вехи нет, но текущий статус известен — эмитим ровно одно
	// событие с лучшей доступной датой.
	at := firstNonNil(snap.DateDelivered, snap.LastUpdated, snap.DateCreated)
	ts := now.UTC()
	if at != nil {
		ts = at.UTC()
	}
	return []models.Event{{
		OccurredAt: ts,
		Status:     snap.Status,
		Detail:     snap.Substatus,
		Origin:     models.OriginSnapshotFallback,
	}}
}

func firstNonNil(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil {
			return t
		}
	}
	return nil
}
