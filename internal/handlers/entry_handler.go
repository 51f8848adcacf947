package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"timetracker/internal/logging"
	"timetracker/internal/middleware"
	"timetracker/internal/repos"
	"timetracker/internal/services"
)

type EntryHandler struct {
	svc *services.EntryService
	log *logging.Logger
}

func NewEntryHandler(svc *services.EntryService, log *logging.Logger) *EntryHandler {
	return &EntryHandler{svc: svc, log: log}
}

func (h *EntryHandler) List(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var f repos.ListFilter
	f.Limit = int(parseInt64Default(c.Query("limit"), 0))
	f.Offset = int(parseInt64Default(c.Query("offset"), 0))
	if v := strings.TrimSpace(c.Query("startDate")); v != "" {
		t, err := parseInstantOrDate(v, false)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate"})
			return
		}
		f.StartDate = &t
	}
	if v := strings.TrimSpace(c.Query("endDate")); v != "" {
		t, err := parseInstantOrDate(v, true)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate"})
			return
		}
		f.EndDate = &t
	}
	if v := strings.TrimSpace(c.Query("categoryId")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid categoryId"})
			return
		}
		f.CategoryID = &id
	}
	f.Search = c.Query("search")

	entries, err := h.svc.List(userID, f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *EntryHandler) Active(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	e, err := h.svc.Active(userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if e == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EntryHandler) Start(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body struct {
		CategoryID *int64  `json:"category_id"`
		TaskName   *string `json:"task_name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if body.CategoryID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category_id is required"})
		return
	}
	e, err := h.svc.Start(userID, *body.CategoryID, body.TaskName)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *EntryHandler) Stop(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id, ok := entryID(c)
	if !ok {
		return
	}
	e, err := h.svc.Stop(userID, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EntryHandler) ScheduleStop(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id, ok := entryID(c)
	if !ok {
		return
	}
	var body struct {
		ScheduledEndTime string `json:"scheduled_end_time"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(body.ScheduledEndTime))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scheduled_end_time"})
		return
	}
	e, err := h.svc.ScheduleStop(userID, id, at)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EntryHandler) ClearSchedule(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id, ok := entryID(c)
	if !ok {
		return
	}
	e, err := h.svc.ClearSchedule(userID, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EntryHandler) Create(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body struct {
		CategoryID *int64  `json:"category_id"`
		TaskName   *string `json:"task_name"`
		StartTime  string  `json:"start_time"`
		EndTime    string  `json:"end_time"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if body.CategoryID == nil || strings.TrimSpace(body.StartTime) == "" || strings.TrimSpace(body.EndTime) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category_id, start_time and end_time are required"})
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(body.StartTime))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_time"})
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(body.EndTime))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_time"})
		return
	}
	e, err := h.svc.Create(userID, services.CreateInput{
		CategoryID: *body.CategoryID,
		TaskName:   body.TaskName,
		StartTime:  start,
		EndTime:    end,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *EntryHandler) Update(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id, ok := entryID(c)
	if !ok {
		return
	}
	// end_time takes three states: absent (keep), null (reopen), value
	// (close). RawMessage keeps absent and null apart.
	var body struct {
		CategoryID *int64          `json:"category_id"`
		TaskName   *string         `json:"task_name"`
		StartTime  *string         `json:"start_time"`
		EndTime    json.RawMessage `json:"end_time"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	in := services.UpdateInput{
		CategoryID: body.CategoryID,
		TaskName:   body.TaskName,
	}
	if body.StartTime != nil {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(*body.StartTime))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_time"})
			return
		}
		in.StartTime = &t
	}
	if len(body.EndTime) > 0 {
		in.EndTimeSet = true
		if string(body.EndTime) != "null" {
			var raw string
			if err := json.Unmarshal(body.EndTime, &raw); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_time"})
				return
			}
			t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_time"})
				return
			}
			in.EndTime = &t
		}
	}
	e, err := h.svc.Update(userID, id, in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

func (h *EntryHandler) Delete(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id, ok := entryID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(userID, id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EntryHandler) DeleteByDate(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	n, err := h.svc.DeleteByDate(userID, c.Param("date"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (h *EntryHandler) MergeTaskNames(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body struct {
		SourceTaskNames    []string `json:"sourceTaskNames"`
		TargetTaskName     string   `json:"targetTaskName"`
		TargetCategoryName *string  `json:"targetCategoryName"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	res, err := h.svc.MergeTaskNames(userID, services.MergeInput{
		SourceTaskNames:    body.SourceTaskNames,
		TargetTaskName:     body.TargetTaskName,
		TargetCategoryName: body.TargetCategoryName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *EntryHandler) BulkUpdateTaskName(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var body struct {
		OldTaskName     string  `json:"oldTaskName"`
		OldCategoryName string  `json:"oldCategoryName"`
		NewTaskName     *string `json:"newTaskName"`
		NewCategoryName *string `json:"newCategoryName"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	n, err := h.svc.BulkUpdateTaskName(userID, services.BulkUpdateInput{
		OldTaskName:     body.OldTaskName,
		OldCategoryName: body.OldCategoryName,
		NewTaskName:     body.NewTaskName,
		NewCategoryName: body.NewCategoryName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entriesUpdated": n})
}

func (h *EntryHandler) Suggestions(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	var categoryID *int64
	if v := strings.TrimSpace(c.Query("categoryId")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid categoryId"})
			return
		}
		categoryID = &id
	}
	limit := int(parseInt64Default(c.Query("limit"), 0))
	names, err := h.svc.Suggestions(userID, categoryID, c.Query("q"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

func (h *EntryHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrInvalidCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
	case errors.Is(err, services.ErrInvalidTimeRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "end time must not be before start time"})
	case errors.Is(err, services.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Errorf("internal: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func entryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}
	return id, true
}

// parseInstantOrDate accepts an RFC3339 instant or a bare YYYY-MM-DD day;
// a bare end day is treated as exclusive upper bound of that day.
func parseInstantOrDate(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func parseInt64Default(v string, fallback int64) int64 {
	if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
		return i
	}
	return fallback
}
