package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/santirms/zupply-app-sub000/internal/integrations/meli"
	"github.com/santirms/zupply-app-sub000/internal/models"
)

// FakeClient — локальная заглушка платформы для демо и тестов окружения.
// Статус детерминирован по external id: часть отправлений "доставлена",
// часть едет, у части истории нет вовсе (проверяет путь синтеза).
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) GetSnapshot(ctx context.Context, accountID uint64, externalID string) (*meli.Snapshot, error) {
	now := time.Now().UTC()
	created := now.Add(-72 * time.Hour)
	shipped := now.Add(-48 * time.Hour)

	snap := &meli.Snapshot{
		ID:          externalID,
		Status:      models.StatusShipped,
		DateCreated: &created,
		DateShipped: &shipped,
		LastUpdated: &now,
	}
	if bucket(externalID)%5 == 0 {
		delivered := now.Add(-1 * time.Hour)
		snap.Status = models.StatusDelivered
		snap.DateDelivered = &delivered
	}
	return snap, nil
}

func (f *FakeClient) GetHistory(ctx context.Context, accountID uint64, externalID string) ([]meli.RawHistoryEntry, error) {
	// Каждый третий трек — с пустой историей.
	if bucket(externalID)%3 == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	t0 := now.Add(-72 * time.Hour)
	t1 := now.Add(-48 * time.Hour)
	return []meli.RawHistoryEntry{
		{Date: &t0, Status: models.StatusHandling},
		{Date: &t1, Status: models.StatusShipped},
	}, nil
}

func (f *FakeClient) GetCheckpoints(ctx context.Context, accountID uint64, externalID string) (*meli.RawTracking, error) {
	now := time.Now().UTC()
	t := now.Add(-24 * time.Hour)
	return &meli.RawTracking{
		Checkpoints: []meli.Checkpoint{
			{Date: &t, Description: "Shipment in transit to destination city"},
		},
	}, nil
}

func (f *FakeClient) ResolveShipmentIDFromOrder(ctx context.Context, accountID uint64, orderID string) (string, error) {
	return "fake-" + orderID, nil
}

func bucket(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
