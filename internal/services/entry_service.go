package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"timetracker/internal/logging"
	"timetracker/internal/models"
	"timetracker/internal/repos"
)

const (
	maxTaskNameLen  = 500
	defaultLimit    = 100
	filteredLimit   = 1000
	maxLimit        = 5000
	suggestionLimit = 100
)

// Notifier receives best-effort change notifications after each successful
// mutation. Failures inside the notifier never propagate back to the caller.
type Notifier interface {
	Broadcast(userID, eventType string)
}

// EntryService owns the time-entry lifecycle: the single-active-entry
// invariant, duration derivation, scheduled stops and bulk task-name
// rewrites. The read-close-insert sequence on Start spans several store
// round-trips, so it runs inside a per-user critical section.
type EntryService struct {
	entries    *repos.EntryRepo
	categories *repos.CategoryRepo
	notifier   Notifier
	log        *logging.Logger

	now func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewEntryService(entries *repos.EntryRepo, categories *repos.CategoryRepo, notifier Notifier, log *logging.Logger) *EntryService {
	return &EntryService{
		entries:    entries,
		categories: categories,
		notifier:   notifier,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		locks:      make(map[string]*sync.Mutex),
	}
}

func (s *EntryService) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *EntryService) notify(userID string) {
	if s.notifier != nil {
		s.notifier.Broadcast(userID, models.SyncTimeEntries)
	}
}

func (s *EntryService) resolveCategory(userID string, categoryID int64) error {
	if _, err := s.categories.GetByID(userID, categoryID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return ErrInvalidCategory
		}
		return err
	}
	return nil
}

func validateTaskName(name *string) error {
	if name != nil && len(*name) > maxTaskNameLen {
		return fmt.Errorf("%w: task name exceeds %d characters", ErrInvalidArgument, maxTaskNameLen)
	}
	return nil
}

// Start opens a new entry at "now". Any currently open entry for the user is
// closed first, inside the same transaction, with its duration computed from
// the same instant, so a concurrent second Start can never observe two open
// entries.
func (s *EntryService) Start(userID string, categoryID int64, taskName *string) (*models.TimeEntry, error) {
	if err := s.resolveCategory(userID, categoryID); err != nil {
		return nil, err
	}
	if err := validateTaskName(taskName); err != nil {
		return nil, err
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	var out *models.TimeEntry
	err := s.entries.WithTx(func(tx *sqlx.Tx) error {
		open, err := s.entries.GetOpenTx(tx, userID)
		if err != nil && !errors.Is(err, repos.ErrNotFound) {
			return err
		}
		if open != nil {
			closeEntryAt(open, now)
			if err := s.entries.UpdateTx(tx, open); err != nil {
				return err
			}
		}
		e := &models.TimeEntry{
			UserID:     userID,
			CategoryID: categoryID,
			TaskName:   taskName,
			StartTime:  now,
			CreatedAt:  now,
		}
		if err := s.entries.InsertTx(tx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(userID)
	return out, nil
}

// Stop closes the open entry with the given id. Ids that are absent, closed
// or owned by someone else all fail identically with ErrNotFound.
func (s *EntryService) Stop(userID string, id int64) (*models.TimeEntry, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	var out *models.TimeEntry
	err := s.entries.WithTx(func(tx *sqlx.Tx) error {
		e, err := s.entries.GetByIDTx(tx, userID, id)
		if err != nil {
			return mapNotFound(err)
		}
		if !e.Open() {
			return ErrNotFound
		}
		closeEntryAt(e, now)
		if err := s.entries.UpdateTx(tx, e); err != nil {
			return mapNotFound(err)
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(userID)
	return out, nil
}

// CreateInput is a manual/backfill creation: both ends of the interval are
// supplied and the entry is born closed.
type CreateInput struct {
	CategoryID int64
	TaskName   *string
	StartTime  time.Time
	EndTime    time.Time
}

func (s *EntryService) Create(userID string, in CreateInput) (*models.TimeEntry, error) {
	if err := s.resolveCategory(userID, in.CategoryID); err != nil {
		return nil, err
	}
	if err := validateTaskName(in.TaskName); err != nil {
		return nil, err
	}
	d := DurationMinutes(in.StartTime, in.EndTime)
	if d < 0 {
		return nil, ErrInvalidTimeRange
	}
	end := in.EndTime.UTC()
	e := &models.TimeEntry{
		UserID:          userID,
		CategoryID:      in.CategoryID,
		TaskName:        in.TaskName,
		StartTime:       in.StartTime.UTC(),
		EndTime:         &end,
		DurationMinutes: &d,
		CreatedAt:       s.now(),
	}
	err := s.entries.WithTx(func(tx *sqlx.Tx) error {
		return s.entries.InsertTx(tx, e)
	})
	if err != nil {
		return nil, err
	}
	s.notify(userID)
	return e, nil
}

// UpdateInput applies a partial edit. Nil means "unchanged" for CategoryID,
// TaskName and StartTime. EndTime is replaced outright whenever EndTimeSet is
// true: an explicit null reopens the entry.
type UpdateInput struct {
	CategoryID *int64
	TaskName   *string
	StartTime  *time.Time
	EndTime    *time.Time
	EndTimeSet bool
}

func (s *EntryService) Update(userID string, id int64, in UpdateInput) (*models.TimeEntry, error) {
	if in.CategoryID != nil {
		if err := s.resolveCategory(userID, *in.CategoryID); err != nil {
			return nil, err
		}
	}
	if err := validateTaskName(in.TaskName); err != nil {
		return nil, err
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var out *models.TimeEntry
	err := s.entries.WithTx(func(tx *sqlx.Tx) error {
		e, err := s.entries.GetByIDTx(tx, userID, id)
		if err != nil {
			return mapNotFound(err)
		}
		if in.CategoryID != nil {
			e.CategoryID = *in.CategoryID
		}
		if in.TaskName != nil {
			e.TaskName = in.TaskName
		}
		if in.StartTime != nil {
			t := in.StartTime.UTC()
			e.StartTime = t
		}
		if in.EndTimeSet {
			if in.EndTime == nil {
				// Reopening while another entry runs would leave two open
				// timers, which no observable state may show.
				if open, err := s.entries.GetOpenTx(tx, userID); err == nil && open.ID != e.ID {
					return fmt.Errorf("%w: another entry is already open", ErrInvalidArgument)
				} else if err != nil && !errors.Is(err, repos.ErrNotFound) {
					return err
				}
				e.EndTime = nil
			} else {
				t := in.EndTime.UTC()
				e.EndTime = &t
			}
		}
		if e.EndTime != nil {
			d := DurationMinutes(e.StartTime, *e.EndTime)
			e.DurationMinutes = &d
			e.ScheduledEndTime = nil
		} else {
			e.DurationMinutes = nil
		}
		if err := s.entries.UpdateTx(tx, e); err != nil {
			return mapNotFound(err)
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(userID)
	return out, nil
}

// Delete removes an entry regardless of whether it is open; deleting the
// running timer simply leaves the user with none.
func (s *EntryService) Delete(userID string, id int64) error {
	if err := s.entries.Delete(userID, id); err != nil {
		return mapNotFound(err)
	}
	s.notify(userID)
	return nil
}

// DeleteByDate removes the user's closed entries whose start falls on the
// given UTC day. ErrNotFound when the day had nothing to delete.
func (s *EntryService) DeleteByDate(userID, date string) (int64, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidArgument)
	}
	from := day.UTC()
	n, err := s.entries.DeleteClosedInRange(userID, from, from.AddDate(0, 0, 1))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	s.notify(userID)
	return n, nil
}

// ScheduleStop records a future instant at which the open entry is meant to
// close. The value is validation and storage only; enforcement happens in the
// auto-stop sweep or client-side.
func (s *EntryService) ScheduleStop(userID string, id int64, at time.Time) (*models.TimeEntry, error) {
	if !at.After(s.now()) {
		return nil, fmt.Errorf("%w: scheduled end time must be in the future", ErrInvalidArgument)
	}
	return s.setSchedule(userID, id, &at)
}

// ClearSchedule drops the scheduled stop. Clearing when none is set is a no-op
// success.
func (s *EntryService) ClearSchedule(userID string, id int64) (*models.TimeEntry, error) {
	return s.setSchedule(userID, id, nil)
}

func (s *EntryService) setSchedule(userID string, id int64, at *time.Time) (*models.TimeEntry, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var out *models.TimeEntry
	err := s.entries.WithTx(func(tx *sqlx.Tx) error {
		e, err := s.entries.GetByIDTx(tx, userID, id)
		if err != nil {
			return mapNotFound(err)
		}
		if !e.Open() {
			return ErrNotFound
		}
		if at != nil {
			t := at.UTC()
			e.ScheduledEndTime = &t
		} else {
			e.ScheduledEndTime = nil
		}
		if err := s.entries.UpdateTx(tx, e); err != nil {
			return mapNotFound(err)
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(userID)
	return out, nil
}

// Active returns the running entry, or nil without error when none is open.
func (s *EntryService) Active(userID string) (*models.TimeEntry, error) {
	e, err := s.entries.GetOpen(userID)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

func (s *EntryService) List(userID string, f repos.ListFilter) ([]models.TimeEntry, error) {
	if f.Limit <= 0 {
		if f.Filtered() {
			f.Limit = filteredLimit
		} else {
			f.Limit = defaultLimit
		}
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.entries.List(userID, f)
}

func (s *EntryService) Suggestions(userID string, categoryID *int64, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > suggestionLimit {
		limit = suggestionLimit
	}
	return s.entries.Suggestions(userID, categoryID, prefix, limit)
}

func closeEntryAt(e *models.TimeEntry, end time.Time) {
	end = end.UTC()
	e.EndTime = &end
	d := DurationMinutes(e.StartTime, end)
	e.DurationMinutes = &d
	e.ScheduledEndTime = nil
}

func mapNotFound(err error) error {
	if errors.Is(err, repos.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
