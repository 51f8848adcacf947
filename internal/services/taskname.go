package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"timetracker/internal/repos"
)

// Task identity is exact string equality on task_name; there is no task
// entity behind it. Differently cased or spaced names are distinct tasks and
// are never unified implicitly; merging them is exactly what these bulk
// operations are for.

type MergeInput struct {
	SourceTaskNames    []string
	TargetTaskName     string
	TargetCategoryName *string
}

type MergeResult struct {
	Merged         int    `json:"merged"`
	EntriesUpdated int64  `json:"entriesUpdated"`
	TargetTaskName string `json:"targetTaskName"`
}

// MergeTaskNames rewrites every entry named in SourceTaskNames to
// TargetTaskName. When TargetCategoryName resolves for the user the rewritten
// rows move to that category too; when it does not resolve the category is
// left alone on every row rather than failing the merge.
func (s *EntryService) MergeTaskNames(userID string, in MergeInput) (*MergeResult, error) {
	sources := make([]string, 0, len(in.SourceTaskNames))
	for _, n := range in.SourceTaskNames {
		if n != "" {
			sources = append(sources, n)
		}
	}
	target := strings.TrimSpace(in.TargetTaskName)
	if len(sources) == 0 || target == "" {
		return nil, fmt.Errorf("%w: sourceTaskNames and targetTaskName are required", ErrInvalidArgument)
	}

	var targetCategoryID *int64
	if in.TargetCategoryName != nil && strings.TrimSpace(*in.TargetCategoryName) != "" {
		cat, err := s.categories.GetByName(userID, strings.TrimSpace(*in.TargetCategoryName))
		switch {
		case err == nil:
			targetCategoryID = &cat.ID
		case errors.Is(err, repos.ErrNotFound):
			s.log.Debugf("merge: target category %q not found for user, leaving categories unchanged", *in.TargetCategoryName)
		default:
			return nil, err
		}
	}

	var updated int64
	err := s.entries.WithTx(func(tx *sqlx.Tx) error {
		n, err := s.entries.CountByTaskNamesTx(tx, userID, sources)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		updated, err = s.entries.RenameTasksTx(tx, userID, sources, target, targetCategoryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(userID)
	return &MergeResult{Merged: len(sources), EntriesUpdated: updated, TargetTaskName: target}, nil
}

type BulkUpdateInput struct {
	OldTaskName     string
	OldCategoryName string
	NewTaskName     *string
	NewCategoryName *string
}

// BulkUpdateTaskName rewrites every entry matching the exact
// (oldTaskName, oldCategoryName) pair to a new task name and/or category.
func (s *EntryService) BulkUpdateTaskName(userID string, in BulkUpdateInput) (int64, error) {
	oldName := strings.TrimSpace(in.OldTaskName)
	oldCatName := strings.TrimSpace(in.OldCategoryName)
	if oldName == "" || oldCatName == "" {
		return 0, fmt.Errorf("%w: oldTaskName and oldCategoryName are required", ErrInvalidArgument)
	}
	if in.NewTaskName == nil && in.NewCategoryName == nil {
		return 0, fmt.Errorf("%w: at least one of newTaskName or newCategoryName is required", ErrInvalidArgument)
	}

	oldCat, err := s.categories.GetByName(userID, oldCatName)
	if err != nil {
		return 0, mapNotFound(err)
	}

	var newCategoryID *int64
	if in.NewCategoryName != nil {
		cat, err := s.categories.GetByName(userID, strings.TrimSpace(*in.NewCategoryName))
		if err != nil {
			if errors.Is(err, repos.ErrNotFound) {
				return 0, ErrInvalidCategory
			}
			return 0, err
		}
		newCategoryID = &cat.ID
	}

	var updated int64
	err = s.entries.WithTx(func(tx *sqlx.Tx) error {
		updated, err = s.entries.RewriteTaskPairTx(tx, userID, oldName, oldCat.ID, in.NewTaskName, newCategoryID)
		if err != nil {
			return err
		}
		if updated == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.notify(userID)
	return updated, nil
}
