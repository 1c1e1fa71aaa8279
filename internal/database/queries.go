package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"bandwidth-probe/internal/models"
)

var _ models.Store = (*DB)(nil)

// Append saves a sample to the database. Rows are never updated.
func (db *DB) Append(ctx context.Context, sample models.SpeedSample) error {
	if err := sample.Validate(); err != nil {
		return err
	}

	query := `
        INSERT INTO speedtests (timestamp, download, upload, ping, error)
        VALUES (?, ?, ?, ?, ?)
    `
	var download, upload, ping, errMsg any
	if sample.Success() {
		download, upload, ping = sample.Download, sample.Upload, sample.Ping
	} else {
		errMsg = sample.Error
	}

	_, err := db.ExecContext(ctx, query, formatTimestamp(sample.Timestamp), download, upload, ping, errMsg)
	return errors.Wrap(err, "insert sample failed")
}

// QueryAggregate retrieves min/max/avg throughput and counts for (start, end]
func (db *DB) QueryAggregate(ctx context.Context, start, end time.Time) (models.AggregateWindow, error) {
	query := `
        SELECT
            COUNT(*) as total,
            COALESCE(SUM(CASE WHEN error IS NULL THEN 1 ELSE 0 END), 0) as successful,
            MIN(CASE WHEN error IS NULL THEN download ELSE NULL END) as min_down,
            MAX(CASE WHEN error IS NULL THEN download ELSE NULL END) as max_down,
            AVG(CASE WHEN error IS NULL THEN download ELSE NULL END) as avg_down,
            MIN(CASE WHEN error IS NULL THEN upload ELSE NULL END) as min_up,
            MAX(CASE WHEN error IS NULL THEN upload ELSE NULL END) as max_up,
            AVG(CASE WHEN error IS NULL THEN upload ELSE NULL END) as avg_up
        FROM speedtests
        WHERE timestamp > ? AND timestamp <= ?
    `

	w := models.AggregateWindow{Start: start, End: end}
	var minDown, maxDown, avgDown, minUp, maxUp, avgUp sql.NullFloat64
	err := db.QueryRowContext(ctx, query, formatBound(start), formatTimestamp(end)).Scan(
		&w.Total, &w.Samples, &minDown, &maxDown, &avgDown, &minUp, &maxUp, &avgUp)
	if err != nil {
		return w, errors.Wrap(err, "aggregate query failed")
	}

	w.Failures = w.Total - w.Samples
	w.Download = models.Stat{Min: minDown.Float64, Max: maxDown.Float64, Avg: avgDown.Float64}
	w.Upload = models.Stat{Min: minUp.Float64, Max: maxUp.Float64, Avg: avgUp.Float64}
	return w, nil
}

// QueryErrorCounts returns the number of failed and total attempts in (start, end]
func (db *DB) QueryErrorCounts(ctx context.Context, start, end time.Time) (int, int, error) {
	query := `
        SELECT
            COALESCE(SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END), 0) as failures,
            COUNT(*) as total
        FROM speedtests
        WHERE timestamp > ? AND timestamp <= ?
    `

	var failures, total int
	err := db.QueryRowContext(ctx, query, formatBound(start), formatTimestamp(end)).Scan(&failures, &total)
	if err != nil {
		return 0, 0, errors.Wrap(err, "error count query failed")
	}
	return failures, total, nil
}

// QueryDistribution retrieves successful samples in (start, end], oldest first
func (db *DB) QueryDistribution(ctx context.Context, start, end time.Time) ([]models.DistributionPoint, error) {
	query := `
        SELECT timestamp, download, upload
        FROM speedtests
        WHERE error IS NULL
        AND download IS NOT NULL AND upload IS NOT NULL
        AND timestamp > ? AND timestamp <= ?
        ORDER BY timestamp
    `

	rows, err := db.QueryContext(ctx, query, formatBound(start), formatTimestamp(end))
	if err != nil {
		return nil, errors.Wrap(err, "distribution query failed")
	}
	defer rows.Close()

	points := make([]models.DistributionPoint, 0)
	for rows.Next() {
		var ts string
		var p models.DistributionPoint
		if err := rows.Scan(&ts, &p.Download, &p.Upload); err != nil {
			return nil, errors.Wrap(err, "distribution scan failed")
		}
		p.Timestamp, err = parseTimestamp(ts)
		if err != nil {
			log.Debug().Err(err).Msg("skipping sample with bad timestamp")
			continue
		}
		points = append(points, p)
	}

	return points, errors.Wrap(rows.Err(), "distribution iteration failed")
}

// QueryEarliestTimestamp returns the timestamp of the oldest successful sample
func (db *DB) QueryEarliestTimestamp(ctx context.Context) (time.Time, bool, error) {
	var ts sql.NullString
	err := db.QueryRowContext(ctx, `SELECT MIN(timestamp) FROM speedtests WHERE error IS NULL`).Scan(&ts)
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "earliest timestamp query failed")
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}

	t, err := parseTimestamp(ts.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// QueryRecent retrieves the newest samples, failures included
func (db *DB) QueryRecent(ctx context.Context, limit int) ([]models.SpeedSample, error) {
	query := `
        SELECT timestamp, download, upload, ping, error
        FROM speedtests
        ORDER BY timestamp DESC
        LIMIT ?
    `

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "recent query failed")
	}
	defer rows.Close()

	samples := make([]models.SpeedSample, 0, limit)
	for rows.Next() {
		var ts string
		var download, upload, ping sql.NullFloat64
		var errMsg sql.NullString
		if err := rows.Scan(&ts, &download, &upload, &ping, &errMsg); err != nil {
			return nil, errors.Wrap(err, "recent scan failed")
		}

		s := models.SpeedSample{
			Download: download.Float64,
			Upload:   upload.Float64,
			Ping:     ping.Float64,
		}
		if errMsg.Valid {
			s.Error = errMsg.String
		}
		s.Timestamp, err = parseTimestamp(ts)
		if err != nil {
			log.Debug().Err(err).Msg("skipping sample with bad timestamp")
			continue
		}
		samples = append(samples, s)
	}

	return samples, errors.Wrap(rows.Err(), "recent iteration failed")
}
