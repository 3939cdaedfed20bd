package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-assess/internal/db"
)

type Event struct {
	Seq       int64  `json:"seq"`
	SiteID    string `json:"site_id"`
	Type      string `json:"type"`
	Key       string `json:"key"`
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

// Log is an append-only table read by notification and analytics consumers.
type Log struct {
	db     *sql.DB
	siteID string
	now    func() time.Time
}

func New(dbh *sql.DB, siteID string) *Log {
	if siteID == "" {
		siteID = "local"
	}
	return &Log{db: dbh, siteID: siteID, now: time.Now}
}

// Append writes one event through q, so callers can make it part of their
// own transaction.
func (l *Log) Append(ctx context.Context, q db.Querier, typ, key string, payload any) error {
	if q == nil {
		q = l.db
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventlog: encode %s: %w", typ, err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		l.siteID, typ, key, string(data), l.now().Unix())
	return err
}

// List returns up to limit events with seq > after, oldest first.
func (l *Log) List(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at
		   FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
