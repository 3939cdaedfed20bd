// Command attemptctl administers tests and reads attempt outcomes straight
// from the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/mind-engage/mindengage-assess/internal/assignment"
	"github.com/mind-engage/mindengage-assess/internal/attempt"
	"github.com/mind-engage/mindengage-assess/internal/config"
	"github.com/mind-engage/mindengage-assess/internal/content"
	"github.com/mind-engage/mindengage-assess/internal/db"
	"github.com/mind-engage/mindengage-assess/internal/eventlog"
)

const usage = `usage: attemptctl <command> [flags]

commands:
  import    -file test.json             import a test definition
  assign    -test N -students a,b [-off] assign (or unassign) students
  results   -test N -student S          show a finished attempt's results
  review    -test N -student S          show a per-question review
  attempts  [-test N] [-student S]      list attempts, newest first
  events    [-after SEQ] [-limit N]     tail the event log
`

// operator is the identity attemptctl acts as.
var operator = attempt.Caller{ID: "attemptctl", Role: attempt.RoleAdmin}

type app struct {
	out         io.Writer
	importer    *content.Importer
	assignments *assignment.Store
	attempts    *attempt.Service
	events      *eventlog.Log
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Fatal(err)
	}
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	assignments := assignment.NewStore(dbh)
	a := &app{
		out:         os.Stdout,
		importer:    content.NewImporter(dbh),
		assignments: assignments,
		attempts:    attempt.NewService(dbh, content.NewSQLView(dbh), assignments, attempt.WithLogger(log.New(io.Discard, "", 0))),
		events:      eventlog.New(dbh, cfg.SiteID),
	}
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	var (
		file     = fs.String("file", "", "test definition JSON")
		testID   = fs.Int64("test", 0, "test id")
		student  = fs.String("student", "", "student id")
		students = fs.String("students", "", "comma-separated student ids")
		off      = fs.Bool("off", false, "unassign instead of assign")
		status   = fs.String("status", "", "attempt status filter")
		after    = fs.Int64("after", 0, "event sequence to start after")
		limit    = fs.Int("limit", 50, "max rows")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch cmd {
	case "import":
		if *file == "" {
			return fmt.Errorf("import: -file is required")
		}
		raw, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		var def content.TestDef
		if err := json.Unmarshal(raw, &def); err != nil {
			return fmt.Errorf("import: %s: %w", *file, err)
		}
		id, err := a.importer.PutTest(ctx, def)
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(a.out, "imported %q as test %d\n", def.Title, id)
		return nil

	case "assign":
		ids := splitCSV(*students)
		if *testID == 0 || len(ids) == 0 {
			return fmt.Errorf("assign: -test and -students are required")
		}
		if *off {
			for _, sid := range ids {
				if err := a.assignments.Unassign(ctx, *testID, sid); err != nil {
					return err
				}
			}
		} else if err := a.assignments.Assign(ctx, *testID, ids...); err != nil {
			return err
		}
		list, err := a.assignments.ForTest(ctx, *testID)
		if err != nil {
			return err
		}
		renderAssignments(a.out, list)
		return nil

	case "results":
		if *testID == 0 || *student == "" {
			return fmt.Errorf("results: -test and -student are required")
		}
		res, err := a.attempts.GetResults(ctx, operator, *testID, *student)
		if err != nil {
			return err
		}
		renderResults(a.out, res)
		return nil

	case "review":
		if *testID == 0 || *student == "" {
			return fmt.Errorf("review: -test and -student are required")
		}
		rv, err := a.attempts.GetReview(ctx, operator, *testID, *student)
		if err != nil {
			return err
		}
		renderReview(a.out, rv)
		return nil

	case "attempts":
		list, err := a.attempts.ListAttempts(ctx, operator, attempt.AttemptFilter{
			TestID: *testID, StudentID: *student, Status: attempt.Status(*status), Limit: *limit,
		})
		if err != nil {
			return err
		}
		renderAttempts(a.out, list)
		return nil

	case "events":
		evs, err := a.events.List(ctx, *after, *limit)
		if err != nil {
			return err
		}
		renderEvents(a.out, evs)
		return nil
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
