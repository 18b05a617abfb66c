package recon

import (
	"testing"
	"time"

	"github.com/santirms/zupply-app-sub000/internal/integrations/meli"
	"github.com/santirms/zupply-app-sub000/internal/models"
	"github.com/stretchr/testify/require"
)

func tp(t time.Time) *time.Time { return &t }

var baseT = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizeHistory_DropsDatelessRows(t *testing.T) {
	rows := []meli.RawHistoryEntry{
		{Date: tp(baseT), Status: models.StatusHandling},
		{Date: nil, Status: models.StatusShipped},
		{Date: tp(baseT.Add(time.Hour)), Status: ""},
	}

	out := NormalizeHistory(rows)
	require.Len(t, out, 1)
	require.Equal(t, models.StatusHandling, out[0].Status)
	require.Equal(t, models.OriginHistory, out[0].Origin)
	// Ничего не датируем "сейчас".
	require.Equal(t, baseT, out[0].OccurredAt)
}

func TestNormalizeHistory_CopiesSubstatusLikeStatus(t *testing.T) {
	rows := []meli.RawHistoryEntry{
		{Date: tp(baseT), Status: models.DetailPrinted},
		{Date: tp(baseT), Status: models.DetailOutForDelivery},
		{Date: tp(baseT), Status: models.StatusShipped}, // обычный статус — detail не трогаем
		{Date: tp(baseT), Status: models.DetailPrinted, Substatus: "already_set"},
	}

	out := NormalizeHistory(rows)
	require.Len(t, out, 4)
	require.Equal(t, models.DetailPrinted, out[0].Detail)
	require.Equal(t, models.DetailOutForDelivery, out[1].Detail)
	require.Equal(t, "", out[2].Detail)
	require.Equal(t, "already_set", out[3].Detail)
}

func TestNormalizeHistory_KeepsRemoteIDAndNote(t *testing.T) {
	note := "package scanned"
	rows := []meli.RawHistoryEntry{
		{Date: tp(baseT), Status: models.StatusShipped, RemoteID: "ev-9", Note: &note},
	}

	out := NormalizeHistory(rows)
	require.Len(t, out, 1)
	require.Equal(t, "ev-9", out[0].RemoteID)
	require.Equal(t, "history|ev-9", out[0].DedupeKey())
	require.Equal(t, &note, out[0].Note)
}

func TestNormalizeCheckpoints_PhraseTable(t *testing.T) {
	rt := &meli.RawTracking{Checkpoints: []meli.Checkpoint{
		{Date: tp(baseT), Description: "Package is OUT FOR DELIVERY in your area"},
		{Date: tp(baseT.Add(time.Hour)), Description: "Shipment delivered to the address"},
		{Date: tp(baseT.Add(2 * time.Hour)), Description: "Receiver absent, will retry"},
		{Date: tp(baseT.Add(3 * time.Hour)), Description: "Something the table does not know"},
		{Date: nil, Description: "in transit"},
	}}

	out := NormalizeCheckpoints(rt)
	require.Len(t, out, 3)

	require.Equal(t, models.StatusShipped, out[0].Status)
	require.Equal(t, models.DetailOutForDelivery, out[0].Detail)
	require.Equal(t, models.OriginTracking, out[0].Origin)

	require.Equal(t, models.StatusDelivered, out[1].Status)

	require.Equal(t, models.StatusNotDelivered, out[2].Status)
	require.Equal(t, models.DetailReceiverAbsent, out[2].Detail)
}

func TestNormalizeCheckpoints_Nil(t *testing.T) {
	require.Nil(t, NormalizeCheckpoints(nil))
}

func TestHasTransitMilestone(t *testing.T) {
	require.False(t, hasTransitMilestone(nil))
	require.False(t, hasTransitMilestone([]models.Event{{Status: models.StatusHandling}}))
	require.True(t, hasTransitMilestone([]models.Event{{Status: models.StatusShipped}}))
	require.True(t, hasTransitMilestone([]models.Event{
		{Status: models.StatusNotDelivered, Detail: models.DetailOutForDelivery},
	}))
}
