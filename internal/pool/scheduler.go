package pool

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler owns the one active recovery timer permitted per account
// (spec.md §3 invariant: "exactly one active recovery timer per
// account"). It is built on cron/v3's one-shot entry pattern: every
// scheduled check registers a single cron.EntryID and removes it from
// cron the instant it fires or is superseded.
type Scheduler struct {
	logger *slog.Logger
	cron   *cron.Cron
	check  func(*Account)

	mu      sync.Mutex
	entries map[string]cron.EntryID // by account uuid
}

func NewScheduler(logger *slog.Logger, check func(*Account)) *Scheduler {
	s := &Scheduler{
		logger:  logger,
		cron:    cron.New(cron.WithSeconds()),
		check:   check,
		entries: make(map[string]cron.EntryID),
	}
	s.cron.Start()
	return s
}

// cancel removes any pending timer for the account, leaving it with none.
func (s *Scheduler) cancel(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[a.UUID]; ok {
		s.cron.Remove(id)
		delete(s.entries, a.UUID)
	}
}

// schedule installs a one-shot entry `delay` in the future, replacing any
// existing entry for this account so the one-timer-per-account invariant
// holds even if two failures race.
func (s *Scheduler) schedule(a *Account, delay time.Duration, kind HealthCheckScheduleType) {
	s.mu.Lock()
	if id, ok := s.entries[a.UUID]; ok {
		s.cron.Remove(id)
	}
	s.mu.Unlock()

	a.Mu.Lock()
	a.HealthCheckScheduleType = kind
	a.Mu.Unlock()

	var id cron.EntryID
	id = s.cron.Schedule(cron.ConstantDelaySchedule{Delay: delay}, cron.FuncJob(func() {
		s.cron.Remove(id)
		s.mu.Lock()
		delete(s.entries, a.UUID)
		s.mu.Unlock()
		s.check(a)
	}))

	s.mu.Lock()
	s.entries[a.UUID] = id
	s.mu.Unlock()
}

func (s *Scheduler) scheduleQuickRetry(a *Account) {
	a.Mu.Lock()
	intervalMs := a.Static.QuickRetryIntervalMs
	a.Mu.Unlock()
	s.schedule(a, time.Duration(intervalMs)*time.Millisecond, ScheduleQuickRetry)
}

func (s *Scheduler) scheduleRateLimit(a *Account) {
	a.Mu.Lock()
	intervalMs := a.Static.RateLimitHealthCheckIntervalMs
	a.Mu.Unlock()
	s.schedule(a, time.Duration(intervalMs)*time.Millisecond, ScheduleRateLimit)
}

func (s *Scheduler) scheduleStandard(a *Account) {
	a.Mu.Lock()
	intervalMs := a.Static.StandardHealthCheckIntervalMs
	a.Mu.Unlock()
	s.schedule(a, time.Duration(intervalMs)*time.Millisecond, ScheduleStandard)
}

// Stop drains the cron scheduler. Pending one-shot entries are simply
// never fired again.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
