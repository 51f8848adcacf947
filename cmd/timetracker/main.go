package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"timetracker/internal/auth"
	"timetracker/internal/config"
	"timetracker/internal/handlers"
	httpapi "timetracker/internal/http"
	"timetracker/internal/logging"
	"timetracker/internal/repos"
	"timetracker/internal/services"
	"timetracker/internal/syncer"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	db, err := sqlx.Open("sqlite", cfg.DatabaseURL)
	if err != nil {
		log.Errorf("open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runMigrations(db, cfg.MigrationsDir); err != nil {
		log.Errorf("migrations: %v", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenService(cfg.TokenSecret, cfg.TokenTTL)
	broadcaster := syncer.NewBroadcaster(log)
	entryRepo := repos.NewEntryRepo(db)
	categoryRepo := repos.NewCategoryRepo(db)
	svc := services.NewEntryService(entryRepo, categoryRepo, broadcaster, log)

	entryHandler := handlers.NewEntryHandler(svc, log)
	syncHandler := handlers.NewSyncHandler(broadcaster, tokens, cfg.HeartbeatInterval, log)

	r := httpapi.NewRouter(tokens, entryHandler, syncHandler, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go svc.RunAutoStopSweep(ctx, cfg.SweepInterval)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Infof("timetracker listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	broadcaster.Shutdown()
	_ = srv.Shutdown(context.Background())
}

func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		ddl, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := db.Exec(string(ddl)); err != nil {
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
	}
	return nil
}
