package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TimestampLayout is the persisted timestamp format. Values are stored in UTC
// at whole-second precision so that string order matches time order; range
// bounds are truncated the same way, so a sample at start+0.5s is stored as
// start and falls outside (start, end].
const TimestampLayout = "2006-01-02T15:04:05Z"

// legacyLayouts covers naive local timestamps written by older collectors.
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// formatBound formats a range bound. The zero time is the unbounded lower end:
// every stored timestamp compares greater than the empty string.
func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTimestamp(t)
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized timestamp %q", s)
}

// normalizeTimestamps rewrites rows not in TimestampLayout (naive local or
// offset timestamps from older collectors) to UTC, so range filters and MIN()
// compare like with like. Unparseable rows are left alone.
func (db *DB) normalizeTimestamps(ctx context.Context) error {
	rows, err := db.QueryContext(ctx, `
        SELECT rowid, timestamp
        FROM speedtests
        WHERE length(timestamp) != 20 OR substr(timestamp, 20, 1) != 'Z'
    `)
	if err != nil {
		return errors.Wrap(err, "legacy timestamp query failed")
	}

	type fix struct {
		rowid int64
		ts    string
	}
	var fixes []fix
	for rows.Next() {
		var id int64
		var ts string
		if err := rows.Scan(&id, &ts); err != nil {
			rows.Close()
			return errors.Wrap(err, "legacy timestamp scan failed")
		}
		t, err := parseTimestamp(ts)
		if err != nil {
			log.Warn().Err(err).Int64("rowid", id).Msg("leaving unparseable timestamp as is")
			continue
		}
		fixes = append(fixes, fix{rowid: id, ts: formatTimestamp(t)})
	}
	if err := rows.Close(); err != nil {
		return errors.Wrap(err, "legacy timestamp iteration failed")
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "legacy timestamp iteration failed")
	}
	if len(fixes) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin failed")
	}
	defer tx.Rollback()

	for _, f := range fixes {
		if _, err := tx.ExecContext(ctx, `UPDATE speedtests SET timestamp = ? WHERE rowid = ?`, f.ts, f.rowid); err != nil {
			return errors.Wrap(err, "legacy timestamp update failed")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit failed")
	}

	log.Info().Int("rows", len(fixes)).Msg("converted legacy timestamps to UTC")
	return nil
}
