package service

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type liveRunner struct {
	hz     int
	cancel context.CancelFunc
	done   chan struct{}
}

// StartLive ticks the race on the server at hz until it finishes or is
// stopped by StopLive, DeleteRace or Close. The runner outlives ctx's cancellation but
// keeps its values.
func (s *raceServiceImpl) StartLive(ctx context.Context, raceID string, hz int) error {
	if hz <= 0 {
		hz = s.tickRate
	}
	if hz > MaxTickRate {
		return fmt.Errorf("%w: rate must be at most %d Hz, got %d", ErrInvalidTick, MaxTickRate, hz)
	}

	s.mu.Lock()
	sess, err := s.session(raceID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	if _, running := s.live[sess.ID]; running {
		return fmt.Errorf("%w: %s", ErrLiveAlreadyRunning, sess.ID)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runner := &liveRunner{hz: hz, cancel: cancel, done: make(chan struct{})}
	s.live[sess.ID] = runner
	go s.runLive(runCtx, sess.ID, runner)

	s.logger.Info().Str("race_id", sess.ID).Int("hz", hz).Msg("live ticking started")
	return nil
}

// StopLive stops the race's runner and waits for it to exit
func (s *raceServiceImpl) StopLive(raceID string) error {
	s.liveMu.Lock()
	runner, id := s.findLive(raceID)
	if runner == nil {
		s.liveMu.Unlock()
		return fmt.Errorf("%w: %s", ErrLiveNotRunning, raceID)
	}
	delete(s.live, id)
	s.liveMu.Unlock()

	runner.cancel()
	<-runner.done
	s.logger.Info().Str("race_id", id).Msg("live ticking stopped")
	return nil
}

// IsLive reports whether the race has a runner
func (s *raceServiceImpl) IsLive(raceID string) bool {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	runner, _ := s.findLive(raceID)
	return runner != nil
}

// Close stops every runner
func (s *raceServiceImpl) Close() {
	s.liveMu.Lock()
	runners := s.live
	s.live = make(map[string]*liveRunner)
	s.liveMu.Unlock()

	for _, r := range runners {
		r.cancel()
		<-r.done
	}
}

func (s *raceServiceImpl) runLive(ctx context.Context, raceID string, runner *liveRunner) {
	defer close(runner.done)

	ticker := time.NewTicker(time.Second / time.Duration(runner.hz))
	defer ticker.Stop()
	dt := 1 / float64(runner.hz)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Tick(ctx, raceID, dt, 1)
			if err != nil {
				s.logger.Warn().Err(err).Str("race_id", raceID).Msg("live ticking aborted")
				s.dropLive(raceID, runner)
				return
			}
			// finished races are frozen
			if res.Result != nil {
				s.logger.Debug().Str("race_id", raceID).Msg("live ticking stopped, race finished")
				s.dropLive(raceID, runner)
				return
			}
		}
	}
}

// dropLive forgets runner unless a newer one replaced it.
func (s *raceServiceImpl) dropLive(raceID string, runner *liveRunner) {
	s.liveMu.Lock()
	if s.live[raceID] == runner {
		delete(s.live, raceID)
	}
	s.liveMu.Unlock()
}

// findLive matches ids case-insensitively like the session store. Callers
// hold s.liveMu.
func (s *raceServiceImpl) findLive(raceID string) (*liveRunner, string) {
	if r, ok := s.live[raceID]; ok {
		return r, raceID
	}
	for id, r := range s.live {
		if strings.EqualFold(id, raceID) {
			return r, id
		}
	}
	return nil, ""
}
