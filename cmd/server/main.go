package main

import (
	"context"
	"log"
	"net/http"
	"time"

	api "github.com/mind-engage/mindengage-assess/internal/api/http"
	"github.com/mind-engage/mindengage-assess/internal/assignment"
	"github.com/mind-engage/mindengage-assess/internal/attempt"
	auth "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/config"
	"github.com/mind-engage/mindengage-assess/internal/content"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/eventlog"
	"github.com/mind-engage/mindengage-assess/internal/grading"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	// --- Services ---
	assignments := assignment.NewStore(dbh)
	events := eventlog.New(dbh, cfg.SiteID)
	attempts := attempt.NewService(dbh, content.NewSQLView(dbh), assignments,
		attempt.WithEvents(events),
		attempt.WithTextMatcher(grading.TextMatcher{MaxEdit: cfg.TextMatchMaxEdit}),
	)

	if cfg.EnableLocalAuth && len(cfg.LocalUsers) == 0 {
		log.Printf("local auth enabled but LOCAL_USERS is empty; /auth/login will reject everyone")
	}

	h := api.NewRouter(api.Deps{
		DB:              dbh,
		Attempts:        attempts,
		Importer:        content.NewImporter(dbh),
		Assignments:     assignments,
		Auth:            auth.NewAuthService(cfg.AuthSecret),
		EnableLocalAuth: cfg.EnableLocalAuth,
		LocalUsers:      cfg.LocalUsers,
		CORSOrigins:     cfg.CORSOrigins(),
	})

	s := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, driver)
	log.Fatal(s.ListenAndServe())
}
