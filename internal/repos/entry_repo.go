package repos

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"timetracker/internal/models"
)

var ErrNotFound = errors.New("not found")

const entryColumns = `id, user_id, category_id, task_name, start_time, end_time, scheduled_end_time, duration_minutes, created_at`

// ListFilter narrows List; nil/zero fields are ignored.
type ListFilter struct {
	Limit      int
	Offset     int
	StartDate  *time.Time
	EndDate    *time.Time
	CategoryID *int64
	Search     string
}

// Filtered reports whether any narrowing field is set, which changes the
// default page size upstream.
func (f ListFilter) Filtered() bool {
	return f.StartDate != nil || f.EndDate != nil || f.CategoryID != nil || strings.TrimSpace(f.Search) != ""
}

type EntryRepo struct {
	db *sqlx.DB
}

func NewEntryRepo(db *sqlx.DB) *EntryRepo {
	return &EntryRepo{db: db}
}

func (r *EntryRepo) DB() *sqlx.DB {
	return r.db
}

func (r *EntryRepo) WithTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *EntryRepo) GetByID(userID string, id int64) (*models.TimeEntry, error) {
	var e models.TimeEntry
	err := r.db.Get(&e, `SELECT `+entryColumns+` FROM time_entries WHERE user_id = ? AND id = ?`, userID, id)
	return entryOrErr(&e, err)
}

func (r *EntryRepo) GetByIDTx(tx *sqlx.Tx, userID string, id int64) (*models.TimeEntry, error) {
	var e models.TimeEntry
	err := tx.Get(&e, `SELECT `+entryColumns+` FROM time_entries WHERE user_id = ? AND id = ?`, userID, id)
	return entryOrErr(&e, err)
}

// GetOpen returns the user's single open entry, ErrNotFound when no timer is
// running.
func (r *EntryRepo) GetOpen(userID string) (*models.TimeEntry, error) {
	var e models.TimeEntry
	err := r.db.Get(&e, `SELECT `+entryColumns+` FROM time_entries WHERE user_id = ? AND end_time IS NULL`, userID)
	return entryOrErr(&e, err)
}

func (r *EntryRepo) GetOpenTx(tx *sqlx.Tx, userID string) (*models.TimeEntry, error) {
	var e models.TimeEntry
	err := tx.Get(&e, `SELECT `+entryColumns+` FROM time_entries WHERE user_id = ? AND end_time IS NULL`, userID)
	return entryOrErr(&e, err)
}

func (r *EntryRepo) InsertTx(tx *sqlx.Tx, e *models.TimeEntry) error {
	res, err := tx.Exec(`
		INSERT INTO time_entries (user_id, category_id, task_name, start_time, end_time, scheduled_end_time, duration_minutes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.UserID, e.CategoryID, e.TaskName, e.StartTime.UTC(), utcOrNil(e.EndTime), utcOrNil(e.ScheduledEndTime), e.DurationMinutes, e.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err == nil {
		e.ID = id
	}
	return nil
}

// UpdateTx rewrites every mutable column of the row identified by
// (user_id, id). ErrNotFound when the row does not exist for that user.
func (r *EntryRepo) UpdateTx(tx *sqlx.Tx, e *models.TimeEntry) error {
	res, err := tx.Exec(`
		UPDATE time_entries
		SET category_id = ?, task_name = ?, start_time = ?, end_time = ?, scheduled_end_time = ?, duration_minutes = ?
		WHERE user_id = ? AND id = ?
	`, e.CategoryID, e.TaskName, e.StartTime.UTC(), utcOrNil(e.EndTime), utcOrNil(e.ScheduledEndTime), e.DurationMinutes, e.UserID, e.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *EntryRepo) Delete(userID string, id int64) error {
	res, err := r.db.Exec(`DELETE FROM time_entries WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteClosedInRange removes closed entries whose start_time falls in
// [from, to). Open entries are never deleted by date.
func (r *EntryRepo) DeleteClosedInRange(userID string, from, to time.Time) (int64, error) {
	res, err := r.db.Exec(`
		DELETE FROM time_entries
		WHERE user_id = ? AND end_time IS NOT NULL AND start_time >= ? AND start_time < ?
	`, userID, from.UTC(), to.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *EntryRepo) List(userID string, f ListFilter) ([]models.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE user_id = ?`
	args := []any{userID}
	if f.StartDate != nil {
		query += ` AND start_time >= ?`
		args = append(args, f.StartDate.UTC())
	}
	if f.EndDate != nil {
		query += ` AND start_time < ?`
		args = append(args, f.EndDate.UTC())
	}
	if f.CategoryID != nil {
		query += ` AND category_id = ?`
		args = append(args, *f.CategoryID)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		query += ` AND task_name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(q)+"%")
	}
	query += ` ORDER BY start_time DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	entries := make([]models.TimeEntry, 0, f.Limit)
	if err := r.db.Select(&entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}

// Suggestions returns distinct non-empty task names, most recently used
// first, optionally narrowed by category and name prefix.
func (r *EntryRepo) Suggestions(userID string, categoryID *int64, prefix string, limit int) ([]string, error) {
	query := `
		SELECT task_name FROM time_entries
		WHERE user_id = ? AND task_name IS NOT NULL AND task_name != ''`
	args := []any{userID}
	if categoryID != nil {
		query += ` AND category_id = ?`
		args = append(args, *categoryID)
	}
	if p := strings.TrimSpace(prefix); p != "" {
		query += ` AND task_name LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(p)+"%")
	}
	query += ` GROUP BY task_name ORDER BY MAX(start_time) DESC LIMIT ?`
	args = append(args, limit)

	names := make([]string, 0, limit)
	if err := r.db.Select(&names, query, args...); err != nil {
		return nil, err
	}
	return names, nil
}

// ListDueScheduled returns open entries, across all users, whose scheduled
// end has passed.
func (r *EntryRepo) ListDueScheduled(now time.Time) ([]models.TimeEntry, error) {
	entries := []models.TimeEntry{}
	err := r.db.Select(&entries, `
		SELECT `+entryColumns+` FROM time_entries
		WHERE end_time IS NULL AND scheduled_end_time IS NOT NULL AND scheduled_end_time <= ?
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByTaskNamesTx counts entries whose task_name is in names.
func (r *EntryRepo) CountByTaskNamesTx(tx *sqlx.Tx, userID string, names []string) (int64, error) {
	query, args, err := sqlx.In(`SELECT COUNT(*) FROM time_entries WHERE user_id = ? AND task_name IN (?)`, userID, names)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Get(&n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// RenameTasksTx rewrites every entry named in sources to target, and to
// categoryID when non-nil. Returns rows changed.
func (r *EntryRepo) RenameTasksTx(tx *sqlx.Tx, userID string, sources []string, target string, categoryID *int64) (int64, error) {
	var (
		query string
		args  []any
		err   error
	)
	if categoryID != nil {
		query, args, err = sqlx.In(`UPDATE time_entries SET task_name = ?, category_id = ? WHERE user_id = ? AND task_name IN (?)`,
			target, *categoryID, userID, sources)
	} else {
		query, args, err = sqlx.In(`UPDATE time_entries SET task_name = ? WHERE user_id = ? AND task_name IN (?)`,
			target, userID, sources)
	}
	if err != nil {
		return 0, err
	}
	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RewriteTaskPairTx rewrites entries matching the exact
// (task_name, category_id) pair. Nil newName / newCategoryID leave the
// respective column unchanged.
func (r *EntryRepo) RewriteTaskPairTx(tx *sqlx.Tx, userID, oldName string, oldCategoryID int64, newName *string, newCategoryID *int64) (int64, error) {
	sets := make([]string, 0, 2)
	args := make([]any, 0, 5)
	if newName != nil {
		sets = append(sets, "task_name = ?")
		args = append(args, *newName)
	}
	if newCategoryID != nil {
		sets = append(sets, "category_id = ?")
		args = append(args, *newCategoryID)
	}
	args = append(args, userID, oldName, oldCategoryID)
	res, err := tx.Exec(`UPDATE time_entries SET `+strings.Join(sets, ", ")+` WHERE user_id = ? AND task_name = ? AND category_id = ?`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func entryOrErr(e *models.TimeEntry, err error) (*models.TimeEntry, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
