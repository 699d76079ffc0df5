package billing

import (
	"sync"
	"time"

	"cardsite-backend/internal/logging"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper expires lapsed subscriptions on a cron schedule. Subscriptions
// with auto-renew set are not charged here; they lapse like any other.
type Sweeper struct {
	svc      *Service
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
}

func NewSweeper(svc *Service, schedule string) *Sweeper {
	if schedule == "" {
		schedule = "@every 1h"
	}
	return &Sweeper{svc: svc, schedule: schedule}
}

func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.Run); err != nil {
		logging.L.WithError(err).WithField("schedule", s.schedule).Error("invalid subscription sweep schedule")
		return err
	}
	s.cron.Start()
	s.running = true

	logging.L.WithField("schedule", s.schedule).Info("subscription expiry sweeper started")
	return nil
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	logging.L.Info("subscription expiry sweeper stopped")
}

// Run performs one sweep.
func (s *Sweeper) Run() {
	start := time.Now()
	n, err := s.svc.ExpireDue(start)
	if err != nil {
		logging.L.WithError(err).Error("subscription sweep failed")
		return
	}
	logging.L.WithFields(logrus.Fields{
		"expired":     n,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("subscription sweep finished")
}
