package services

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"timetracker/internal/repos"
)

// RunAutoStopSweep periodically closes open entries whose scheduled end has
// passed, using the scheduled instant as the end time. Clients may still stop
// a timer earlier; the sweep only catches entries nobody was watching. An
// interval of zero disables the sweep.
func (s *EntryService) RunAutoStopSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(); err != nil {
				s.log.Errorf("auto-stop sweep: %v", err)
			}
		}
	}
}

// SweepOnce stops every due scheduled entry. Entries that changed between the
// scan and the per-user critical section are skipped silently.
func (s *EntryService) SweepOnce() error {
	due, err := s.entries.ListDueScheduled(s.now())
	if err != nil {
		return err
	}
	for _, e := range due {
		if err := s.autoStop(e.UserID, e.ID); err != nil {
			s.log.Warnf("auto-stop entry %d: %v", e.ID, err)
		}
	}
	return nil
}

func (s *EntryService) autoStop(userID string, id int64) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	stopped := false
	err := s.entries.WithTx(func(tx *sqlx.Tx) error {
		e, err := s.entries.GetByIDTx(tx, userID, id)
		if err != nil {
			if errors.Is(err, repos.ErrNotFound) {
				return nil
			}
			return err
		}
		if !e.Open() || e.ScheduledEndTime == nil || e.ScheduledEndTime.After(s.now()) {
			return nil
		}
		closeEntryAt(e, *e.ScheduledEndTime)
		if err := s.entries.UpdateTx(tx, e); err != nil {
			return err
		}
		stopped = true
		return nil
	})
	if err != nil {
		return err
	}
	if stopped {
		s.log.Infof("auto-stopped entry %d at its scheduled end", id)
		s.notify(userID)
	}
	return nil
}
