package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"timetracker/internal/auth"
	"timetracker/internal/handlers"
	"timetracker/internal/logging"
	"timetracker/internal/middleware"
)

func NewRouter(tokens *auth.TokenService, entries *handlers.EntryHandler, synch *handlers.SyncHandler, log *logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Session-ID"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")

	// The push stream authenticates via query params, not headers, so it
	// sits outside the header-auth group.
	v1.GET("/sync", synch.Stream)

	authed := v1.Group("")
	authed.Use(middleware.Auth(tokens))
	{
		authed.GET("/sync/status", synch.Status)

		te := authed.Group("/time-entries")
		te.GET("", entries.List)
		te.POST("", entries.Create)
		te.GET("/active", entries.Active)
		te.GET("/suggestions", entries.Suggestions)
		te.POST("/start", entries.Start)
		te.POST("/merge-task-names", entries.MergeTaskNames)
		te.POST("/update-task-name-bulk", entries.BulkUpdateTaskName)
		te.DELETE("/by-date/:date", entries.DeleteByDate)
		te.POST("/:id/stop", entries.Stop)
		te.POST("/:id/schedule-stop", entries.ScheduleStop)
		te.DELETE("/:id/schedule-stop", entries.ClearSchedule)
		te.PUT("/:id", entries.Update)
		te.DELETE("/:id", entries.Delete)
	}
	return r
}
