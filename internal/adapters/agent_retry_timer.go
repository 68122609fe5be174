package adapters

import (
	"context"
	"sync"
	"time"

	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/logger"
)

// TimerRetryScheduler runs delayed agent lookups on in-process timers. It
// backs the single-process mode where no Redis is available; pending timers
// are lost on restart. Retrier must be set before the first lookup misses.
type TimerRetryScheduler struct {
	mu      sync.Mutex
	retrier scheduler.AgentLookupRetrier
	pending map[string]*time.Timer
	log     *logger.Logger
}

func NewTimerRetryScheduler(log *logger.Logger) *TimerRetryScheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &TimerRetryScheduler{pending: make(map[string]*time.Timer), log: log}
}

func (s *TimerRetryScheduler) SetRetrier(r scheduler.AgentLookupRetrier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrier = r
}

// ScheduleAgentLookup arms one timer per (lead, attempt); a second call for
// the same attempt is ignored.
func (s *TimerRetryScheduler) ScheduleAgentLookup(_ context.Context, leadID int64, attempt int, delay time.Duration) error {
	key := scheduler.AgentLookupTaskID(leadID, attempt)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; ok {
		return nil
	}
	s.pending[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.pending, key)
		retrier := s.retrier
		s.mu.Unlock()

		if retrier == nil {
			return
		}
		if err := retrier.RetryLookup(context.Background(), leadID, attempt); err != nil {
			s.log.Error("agent lookup retry failed", "lead_id", leadID, "attempt", attempt, "error", err)
		}
	})
	return nil
}

// Stop cancels every pending timer.
func (s *TimerRetryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.pending {
		t.Stop()
		delete(s.pending, key)
	}
}
