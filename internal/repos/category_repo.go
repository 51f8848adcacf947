package repos

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"timetracker/internal/models"
)

// CategoryRepo is read-only here: category CRUD lives in its own collaborator,
// the lifecycle engine only resolves ids and names against it.
type CategoryRepo struct {
	db *sqlx.DB
}

func NewCategoryRepo(db *sqlx.DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

func (r *CategoryRepo) GetByID(userID string, id int64) (*models.Category, error) {
	var c models.Category
	err := r.db.Get(&c, `SELECT id, user_id, name, color FROM categories WHERE user_id = ? AND id = ?`, userID, id)
	return categoryOrErr(&c, err)
}

func (r *CategoryRepo) GetByName(userID, name string) (*models.Category, error) {
	var c models.Category
	err := r.db.Get(&c, `SELECT id, user_id, name, color FROM categories WHERE user_id = ? AND name = ?`, userID, name)
	return categoryOrErr(&c, err)
}

func categoryOrErr(c *models.Category, err error) (*models.Category, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}
