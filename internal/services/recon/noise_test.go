package recon

import (
	"testing"
	"time"

	"github.com/santirms/zupply-app-sub000/internal/models"
	"github.com/stretchr/testify/require"
)

func recWithIncident(detail string, at time.Time) *models.ShipmentRecord {
	return &models.ShipmentRecord{
		CanonicalStatus: models.StatusNotDelivered,
		CanonicalDetail: detail,
		CanonicalAt:     &at,
	}
}

func TestNoiseFilter_SuppressesFreshIncidentInsideWindow(t *testing.T) {
	f := NewNoiseFilter(NoiseConfig{})

	// 22:30 UTC, инцидент зафиксирован час назад — классический ночной сброс.
	now := time.Date(2025, 3, 1, 22, 30, 0, 0, time.UTC)
	rec := recWithIncident(models.DetailReceiverAbsent, now.Add(-time.Hour))
	cand := models.Canonical{Status: models.StatusNotDelivered, Detail: models.DetailRescheduled, At: now}

	require.True(t, f.Suppress(now, cand, rec))
}

func TestNoiseFilter_OutsideWindowNotSuppressed(t *testing.T) {
	f := NewNoiseFilter(NoiseConfig{})

	now := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	rec := recWithIncident(models.DetailReceiverAbsent, now.Add(-time.Hour))
	cand := models.Canonical{Status: models.StatusNotDelivered, Detail: models.DetailRescheduled, At: now}

	require.False(t, f.Suppress(now, cand, rec))
}

func TestNoiseFilter_StaleIncidentNotProtected(t *testing.T) {
	f := NewNoiseFilter(NoiseConfig{})

	now := time.Date(2025, 3, 1, 22, 30, 0, 0, time.UTC)
	rec := recWithIncident(models.DetailBadAddress, now.Add(-6*time.Hour))
	cand := models.Canonical{Status: models.StatusNotDelivered, Detail: models.DetailRescheduled, At: now}

	require.False(t, f.Suppress(now, cand, rec))
}

func TestNoiseFilter_OnlyGenericResetSuppressed(t *testing.T) {
	f := NewNoiseFilter(NoiseConfig{})

	now := time.Date(2025, 3, 1, 22, 30, 0, 0, time.UTC)
	rec := recWithIncident(models.DetailReceiverAbsent, now.Add(-time.Hour))

	// Специфичный detail внутри окна — это новая информация, не шум.
	cand := models.Canonical{Status: models.StatusNotDelivered, Detail: models.DetailBadAddress, At: now}
	require.False(t, f.Suppress(now, cand, rec))
}

func TestNoiseFilter_GenericCurrentStateNotProtected(t *testing.T) {
	f := NewNoiseFilter(NoiseConfig{})

	now := time.Date(2025, 3, 1, 22, 30, 0, 0, time.UTC)
	at := now.Add(-time.Hour)
	rec := &models.ShipmentRecord{
		CanonicalStatus: models.StatusShipped,
		CanonicalDetail: "",
		CanonicalAt:     &at,
	}
	cand := models.Canonical{Status: models.StatusNotDelivered, Detail: models.DetailRescheduled, At: now}

	require.False(t, f.Suppress(now, cand, rec))
}

func TestNoiseFilter_StartOnlyConfigHonored(t *testing.T) {
	// Задан только старт окна: конец добирается из дефолта, старт не теряется.
	f := NewNoiseFilter(NoiseConfig{WindowStartHour: 20})

	now := time.Date(2025, 3, 1, 20, 30, 0, 0, time.UTC)
	rec := recWithIncident(models.DetailReceiverAbsent, now.Add(-time.Hour))
	cand := models.Canonical{Status: models.StatusNotDelivered, Detail: models.DetailRescheduled, At: now}

	require.True(t, f.Suppress(now, cand, rec))

	before := time.Date(2025, 3, 1, 19, 30, 0, 0, time.UTC)
	rec = recWithIncident(models.DetailReceiverAbsent, before.Add(-time.Hour))
	cand.At = before
	require.False(t, f.Suppress(before, cand, rec))
}

func TestNoiseFilter_WrappingWindowFallsBackToDefault(t *testing.T) {
	// Окно через полночь не поддерживается: 22→2 трактуется как ошибка
	// конфигурации и заменяется дефолтным 21→24.
	f := NewNoiseFilter(NoiseConfig{WindowStartHour: 22, WindowEndHour: 2})

	now := time.Date(2025, 3, 1, 21, 30, 0, 0, time.UTC)
	rec := recWithIncident(models.DetailReceiverAbsent, now.Add(-time.Hour))
	cand := models.Canonical{Status: models.StatusNotDelivered, Detail: models.DetailRescheduled, At: now}
	require.True(t, f.Suppress(now, cand, rec))

	early := time.Date(2025, 3, 1, 1, 30, 0, 0, time.UTC)
	rec = recWithIncident(models.DetailReceiverAbsent, early.Add(-time.Hour))
	cand.At = early
	require.False(t, f.Suppress(early, cand, rec))
}

func TestNoiseFilter_WindowRespectsLocation(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	f := NewNoiseFilter(NoiseConfig{Location: loc})

	// 01:30 UTC == 22:30 местного — внутри окна.
	now := time.Date(2025, 3, 2, 1, 30, 0, 0, time.UTC)
	rec := recWithIncident(models.DetailReceiverAbsent, now.Add(-time.Hour))
	cand := models.Canonical{Status: models.StatusNotDelivered, Detail: models.DetailRescheduled, At: now}

	require.True(t, f.Suppress(now, cand, rec))
}
