package recon

import (
	"testing"
	"time"

	"github.com/santirms/zupply-app-sub000/internal/integrations/meli"
	"github.com/santirms/zupply-app-sub000/internal/models"
	"github.com/stretchr/testify/require"
)

func TestSynthesize_MilestoneWalk(t *testing.T) {
	created := baseT
	ready := baseT.Add(1 * time.Hour)
	shipped := baseT.Add(5 * time.Hour)
	delivered := baseT.Add(30 * time.Hour)

	snap := &meli.Snapshot{
		ID:              "40123",
		Status:          models.StatusDelivered,
		DateCreated:     tp(created),
		DateReadyToShip: tp(ready),
		DateShipped:     tp(shipped),
		DateDelivered:   tp(delivered),
	}

	out := SynthesizeFromSnapshot(snap, baseT.Add(31*time.Hour))
	require.Len(t, out, 4)
	for _, e := range out {
		require.Equal(t, models.OriginSnapshotSynth, e.Origin)
	}
	require.Equal(t, models.StatusHandling, out[0].Status)
	require.Equal(t, models.StatusReadyToShip, out[1].Status)
	require.Equal(t, models.StatusShipped, out[2].Status)
	require.Equal(t, models.StatusDelivered, out[3].Status)
	require.Equal(t, delivered, out[3].OccurredAt)
}

func TestSynthesize_CurrentSubstatusLandsOnCurrentMilestone(t *testing.T) {
	snap := &meli.Snapshot{
		Status:      models.StatusShipped,
		Substatus:   models.DetailOutForDelivery,
		DateCreated: tp(baseT),
		DateShipped: tp(baseT.Add(time.Hour)),
	}

	out := SynthesizeFromSnapshot(snap, baseT.Add(2*time.Hour))
	require.Len(t, out, 2)
	require.Equal(t, "", out[0].Detail)
	require.Equal(t, models.DetailOutForDelivery, out[1].Detail)
}

func TestSynthesize_FallbackSingleEvent(t *testing.T) {
	now := baseT.Add(10 * time.Hour)

	// Ни одной вехи, но статус известен: ровно одно событие, дата не нулевая.
	snap := &meli.Snapshot{Status: models.StatusShipped, Substatus: models.DetailOutForDelivery}
	out := SynthesizeFromSnapshot(snap, now)
	require.Len(t, out, 1)
	require.Equal(t, models.OriginSnapshotFallback, out[0].Origin)
	require.Equal(t, models.StatusShipped, out[0].Status)
	require.Equal(t, models.DetailOutForDelivery, out[0].Detail)
	require.False(t, out[0].OccurredAt.IsZero())
	require.Equal(t, now, out[0].OccurredAt)
}

func TestSynthesize_FallbackPrefersBestDate(t *testing.T) {
	lastUpdated := baseT.Add(3 * time.Hour)
	snap := &meli.Snapshot{
		Status:      models.StatusShipped,
		LastUpdated: tp(lastUpdated),
	}

	out := SynthesizeFromSnapshot(snap, baseT.Add(10*time.Hour))
	require.Len(t, out, 1)
	require.Equal(t, lastUpdated, out[0].OccurredAt)

	// Как только появляется хоть одна веха, включается обычный обход и
	// fallback-лестница не участвует.
	snap.Status = models.StatusDelivered
	snap.DateCreated = tp(baseT)
	out = SynthesizeFromSnapshot(snap, baseT.Add(10*time.Hour))
	require.Len(t, out, 1)
	require.Equal(t, models.OriginSnapshotSynth, out[0].Origin)
	require.Equal(t, models.StatusHandling, out[0].Status)
	require.Equal(t, baseT, out[0].OccurredAt)
}

func TestSynthesize_NothingKnown(t *testing.T) {
	require.Nil(t, SynthesizeFromSnapshot(nil, baseT))
	require.Nil(t, SynthesizeFromSnapshot(&meli.Snapshot{}, baseT))
}

func TestSynthesize_Example_ShippedOutForDelivery(t *testing.T) {
	// history=[], snapshot={shipped/out_for_delivery, shipped_at: T0} →
	// одно событие shipped/out_for_delivery с датой T0.
	t0 := baseT
	snap := &meli.Snapshot{
		Status:      models.StatusShipped,
		Substatus:   models.DetailOutForDelivery,
		DateShipped: tp(t0),
	}

	out := SynthesizeFromSnapshot(snap, baseT.Add(time.Hour))
	require.Len(t, out, 1)
	require.Equal(t, models.StatusShipped, out[0].Status)
	require.Equal(t, models.DetailOutForDelivery, out[0].Detail)
	require.Equal(t, t0, out[0].OccurredAt)
}
