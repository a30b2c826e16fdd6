package postgres

import (
	"sync"
	"time"

	"parkcore/internal/core/tx"
)

// ewmaAlpha weights recent transactions; 0.2 smooths over roughly the
// last ten executions.
const ewmaAlpha = 0.2

// txStats collects running transaction counters.
// Safe for concurrent use.
type txStats struct {
	mu        sync.Mutex
	total     int64
	active    int64
	succeeded int64
	failed    int64
	timedOut  int64
	ewmaNanos float64
}

func (s *txStats) begin() {
	s.mu.Lock()
	s.total++
	s.active++
	s.mu.Unlock()
}

func (s *txStats) finish(success, timedOut bool, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active--
	if success {
		s.succeeded++
	} else {
		s.failed++
		if timedOut {
			s.timedOut++
		}
	}

	if s.ewmaNanos == 0 {
		s.ewmaNanos = float64(d.Nanoseconds())
	} else {
		s.ewmaNanos = ewmaAlpha*float64(d.Nanoseconds()) + (1-ewmaAlpha)*s.ewmaNanos
	}
}

func (s *txStats) snapshot() tx.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return tx.Statistics{
		TotalExecuted: s.total,
		Active:        s.active,
		Succeeded:     s.succeeded,
		Failed:        s.failed,
		TimedOut:      s.timedOut,
		AvgDuration:   time.Duration(s.ewmaNanos),
	}
}
