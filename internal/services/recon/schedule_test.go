package recon

import (
	"testing"
	"time"

	"github.com/santirms/zupply-app-sub000/internal/models"
	"github.com/stretchr/testify/require"
)

func TestSchedule_NextSyncDelay(t *testing.T) {
	s := NewSchedule(ScheduleConfig{}, NewResolver(ResolverConfig{}))

	require.Equal(t, 30*time.Minute, s.NextSyncDelay(models.StatusShipped))
	require.Equal(t, 30*time.Minute, s.NextSyncDelay(models.StatusNotDelivered))
	require.Equal(t, 365*24*time.Hour, s.NextSyncDelay(models.StatusDelivered))
	require.Equal(t, 365*24*time.Hour, s.NextSyncDelay(models.StatusCancelled))
}

func TestSchedule_BackoffLadder(t *testing.T) {
	s := NewSchedule(ScheduleConfig{}, NewResolver(ResolverConfig{}))

	require.Equal(t, 5*time.Minute, s.BackoffDelay(1))
	require.Equal(t, 15*time.Minute, s.BackoffDelay(2))
	require.Equal(t, 30*time.Minute, s.BackoffDelay(3))
	require.Equal(t, 60*time.Minute, s.BackoffDelay(4))
	// Потолок: дальше лестница не растёт.
	require.Equal(t, 60*time.Minute, s.BackoffDelay(9))
}

func TestSchedule_ConfigOverrides(t *testing.T) {
	s := NewSchedule(ScheduleConfig{ActiveDelay: 5 * time.Minute}, NewResolver(ResolverConfig{}))
	require.Equal(t, 5*time.Minute, s.NextSyncDelay(models.StatusShipped))
	// Незаданные поля получают значения по умолчанию.
	require.Equal(t, 5*time.Minute, s.BackoffDelay(1))
}
