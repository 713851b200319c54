package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// purger drops expired records from the in-memory fallback
type purger interface {
	PurgeExpired() int
}

// sweeper runs PurgeExpired on a cron schedule. Remote backends expire keys
// on their own; the fallback only hides expired keys until they are purged.
type sweeper struct {
	cron   *cron.Cron
	target purger
	logger zerolog.Logger
}

func newSweeper(target purger, schedule string, logger zerolog.Logger) (*sweeper, error) {
	s := &sweeper{
		cron:   cron.New(),
		target: target,
		logger: logger,
	}

	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *sweeper) sweep() {
	if removed := s.target.PurgeExpired(); removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("Purged expired fallback records")
	}
}

func (s *sweeper) Start() {
	s.cron.Start()
}

// Stop waits for a running sweep to finish
func (s *sweeper) Stop() {
	<-s.cron.Stop().Done()
}
