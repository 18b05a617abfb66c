package recon

import "time"

// ScheduleConfig controls when a record becomes due again after a cycle.
type ScheduleConfig struct {
	// TerminalDelay: доставленные/отменённые перечитываем практически никогда
	// (selection всё равно отсеет их, кроме свежих гонок canonical/history).
	TerminalDelay time.Duration // default: 365 days
	ActiveDelay   time.Duration // default: 30 minutes

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		TerminalDelay: 365 * 24 * time.Hour,
		ActiveDelay:   30 * time.Minute,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

type Schedule struct {
	cfg      ScheduleConfig
	resolver *Resolver
}

func NewSchedule(cfg ScheduleConfig, resolver *Resolver) *Schedule {
	def := DefaultScheduleConfig()
	if cfg.TerminalDelay <= 0 {
		cfg.TerminalDelay = def.TerminalDelay
	}
	if cfg.ActiveDelay <= 0 {
		cfg.ActiveDelay = def.ActiveDelay
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	return &Schedule{cfg: cfg, resolver: resolver}
}

func (s *Schedule) NextSyncDelay(status string) time.Duration {
	if s.resolver.IsTerminal(status) {
		return s.cfg.TerminalDelay
	}
	return s.cfg.ActiveDelay
}

func (s *Schedule) BackoffDelay(nextFailCount int32) time.Duration {
	switch {
	case nextFailCount <= 1:
		return s.cfg.Backoff1
	case nextFailCount == 2:
		return s.cfg.Backoff2
	case nextFailCount == 3:
		return s.cfg.Backoff3
	default:
		return s.cfg.Backoff4
	}
}
