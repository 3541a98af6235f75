package syncx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	EventAttemptSubmitted = "AttemptSubmitted"
	defaultSiteID         = "local"
)

type Event struct {
	Seq       int64  `db:"seq" json:"seq"`
	SiteID    string `db:"site_id" json:"site_id"`
	Type      string `db:"typ" json:"type"`
	Key       string `db:"key" json:"key"`
	DataJSON  string `db:"data" json:"data"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// NewEvent marshals data into an Event for key.
func NewEvent(typ, key string, data interface{}) (Event, error) {
	buf, err := json.Marshal(data)
	if err != nil {
		return Event{}, errors.Wrap(err, "eventlog: marshal")
	}
	return Event{Type: typ, Key: key, DataJSON: string(buf)}, nil
}

// Append writes e using ext, which may be a *sqlx.DB or a *sqlx.Tx so the
// event commits together with the change it records.
func Append(ctx context.Context, ext sqlx.ExtContext, e Event) error {
	if e.SiteID == "" {
		e.SiteID = defaultSiteID
	}
	_, err := ext.ExecContext(ctx, ext.Rebind(
		`INSERT INTO event_log (site_id, typ, key, data, created_at) VALUES (?,?,?,?,?)`),
		e.SiteID, e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return errors.Wrap(err, "eventlog: append")
}

type EventRepo struct{ db *sqlx.DB }

func NewEventRepo(db *sqlx.DB) *EventRepo { return &EventRepo{db: db} }

// Since returns up to limit events with seq greater than after, oldest first.
func (r *EventRepo) Since(ctx context.Context, after int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Event
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE seq > ? ORDER BY seq LIMIT ?`),
		after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "eventlog: since")
	}
	return out, nil
}
