package database

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bandwidth-probe/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "speedtest.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema(context.Background()))
	return db
}

func success(at time.Time, down, up, ping float64) models.SpeedSample {
	return models.SpeedSample{Timestamp: at, Download: down, Upload: up, Ping: ping}
}

func failure(at time.Time, msg string) models.SpeedSample {
	return models.SpeedSample{Timestamp: at, Error: msg}
}

func TestInitSchema_CreatesTable(t *testing.T) {
	db := newTestDB(t)

	var schema string
	err := db.QueryRow(`SELECT sql FROM sqlite_master WHERE type='table' AND name='speedtests'`).Scan(&schema)
	require.NoError(t, err)

	for _, col := range []string{"timestamp TEXT", "download REAL", "upload REAL", "ping REAL", "error TEXT"} {
		assert.Contains(t, schema, col)
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Append(ctx, success(at, 100, 50, 20)))

	require.NoError(t, db.InitSchema(ctx))
	require.NoError(t, db.InitSchema(ctx))

	_, total, err := db.QueryErrorCounts(ctx, time.Time{}, at)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestAppend_RejectsInvalidSample(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		sample models.SpeedSample
	}{
		{"no timestamp", models.SpeedSample{Download: 1}},
		{"error with measurements", models.SpeedSample{Timestamp: at, Download: 1, Error: "boom"}},
		{"nan download", success(at, math.NaN(), 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.Append(ctx, tt.sample)
			assert.ErrorIs(t, err, models.ErrInvalidSample)
		})
	}
}

func TestAppend_StoresNullsForFailures(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	at := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)
	require.NoError(t, db.Append(ctx, failure(at, "timeout")))

	var ts string
	var download, ping any
	var errMsg string
	err := db.QueryRow(`SELECT timestamp, download, ping, error FROM speedtests`).Scan(&ts, &download, &ping, &errMsg)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:10:00Z", ts)
	assert.Nil(t, download)
	assert.Nil(t, ping)
	assert.Equal(t, "timeout", errMsg)
}

func TestQueryAggregate_SingleSampleRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	at := time.Date(2024, 3, 5, 8, 15, 0, 0, time.UTC)
	require.NoError(t, db.Append(ctx, success(at, 87.5, 12.25, 14)))

	w, err := db.QueryAggregate(ctx, at.Add(-time.Hour), at)
	require.NoError(t, err)

	assert.Equal(t, models.Stat{Min: 87.5, Max: 87.5, Avg: 87.5}, w.Download)
	assert.Equal(t, models.Stat{Min: 12.25, Max: 12.25, Avg: 12.25}, w.Upload)
	assert.Equal(t, 1, w.Samples)
	assert.Equal(t, 0, w.Failures)
}

func TestQueryAggregate_EmptyStore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	w, err := db.QueryAggregate(ctx, time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.Stat{}, w.Download)
	assert.Equal(t, models.Stat{}, w.Upload)
	assert.Zero(t, w.Samples)
	assert.Zero(t, w.Failures)
	assert.Zero(t, w.Total)

	failures, total, err := db.QueryErrorCounts(ctx, time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Zero(t, failures)
	assert.Zero(t, total)

	points, err := db.QueryDistribution(ctx, time.Time{}, time.Now())
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)

	_, ok, err := db.QueryEarliestTimestamp(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryAggregate_SuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)
	require.NoError(t, db.Append(ctx, success(t0, 100.0, 50.0, 20.0)))
	require.NoError(t, db.Append(ctx, failure(t1, "timeout")))

	w, err := db.QueryAggregate(ctx, t0.Add(-time.Second), t1)
	require.NoError(t, err)

	assert.Equal(t, models.Stat{Min: 100, Max: 100, Avg: 100}, w.Download)
	assert.Equal(t, models.Stat{Min: 50, Max: 50, Avg: 50}, w.Upload)
	assert.Equal(t, 1, w.Samples)
	assert.Equal(t, 1, w.Failures)
	assert.Equal(t, 2, w.Total)

	failures, total, err := db.QueryErrorCounts(ctx, t0.Add(-time.Second), t1)
	require.NoError(t, err)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 2, total)
}

func TestQueryAggregate_HalfOpenRange(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	boundary := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Append(ctx, success(boundary, 10, 1, 5)))

	day := 24 * time.Hour
	earlier, err := db.QueryAggregate(ctx, boundary.Add(-day), boundary)
	require.NoError(t, err)
	later, err := db.QueryAggregate(ctx, boundary, boundary.Add(day))
	require.NoError(t, err)

	assert.Equal(t, 1, earlier.Samples, "end bound is inclusive")
	assert.Equal(t, 0, later.Samples, "start bound is exclusive")
}

func TestQueryAggregate_MinMaxAvg(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, down := range []float64{50, 100, 150} {
		require.NoError(t, db.Append(ctx, success(base.Add(time.Duration(i)*15*time.Minute), down, down/10, 10)))
	}

	w, err := db.QueryAggregate(ctx, time.Time{}, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.Stat{Min: 50, Max: 150, Avg: 100}, w.Download)
	assert.InDelta(t, 10.0, w.Upload.Avg, 1e-9)
	assert.Equal(t, 3, w.Samples)
}

func TestQueryDistribution_OrderedSuccessesOnly(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Append(ctx, success(base.Add(30*time.Minute), 30, 3, 1)))
	require.NoError(t, db.Append(ctx, failure(base.Add(15*time.Minute), "no servers")))
	require.NoError(t, db.Append(ctx, success(base, 10, 1, 1)))

	points, err := db.QueryDistribution(ctx, time.Time{}, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, models.DistributionPoint{Timestamp: base, Download: 10, Upload: 1}, points[0])
	assert.Equal(t, 30.0, points[1].Download)
}

func TestQueryEarliestTimestamp_IgnoresFailures(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Append(ctx, failure(first, "offline")))
	require.NoError(t, db.Append(ctx, success(first.Add(time.Hour), 1, 1, 1)))

	earliest, ok, err := db.QueryEarliestTimestamp(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, earliest.Equal(first.Add(time.Hour)))
}

func TestQueryRecent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.Append(ctx, success(base.Add(time.Duration(i)*time.Minute), float64(i), 1, 1)))
	}
	require.NoError(t, db.Append(ctx, failure(base.Add(10*time.Minute), "timeout")))

	recent, err := db.QueryRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "timeout", recent[0].Error)
	assert.False(t, recent[0].Success())
	assert.Equal(t, 4.0, recent[1].Download)
	assert.Equal(t, 3.0, recent[2].Download)
}

func TestParseTimestamp_Legacy(t *testing.T) {
	ts, err := parseTimestamp("2024-01-01T00:10:00.123456")
	require.NoError(t, err)
	assert.Equal(t, 10, ts.Minute())
	assert.Equal(t, time.Local, ts.Location())

	_, err = parseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestOpener_UnavailableUntilCreated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "speedtest.db")
	opener := NewOpener(path, time.Second)
	t.Cleanup(func() { opener.Close() })

	_, err := opener.Get(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "opener must not create the database")

	writer, err := New(path, time.Second)
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.InitSchema(ctx))

	db, err := opener.Get(ctx)
	require.NoError(t, err)
	same, err := opener.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, db, same)
}

func TestOpener_WatchOpensOnCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speedtest.db")
	opener := NewOpener(path, time.Second)
	t.Cleanup(func() { opener.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- opener.Watch(ctx) }()

	writer, err := New(path, time.Second)
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.InitSchema(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("watch did not return after the store was created")
	}

	_, err = opener.Get(ctx)
	assert.NoError(t, err)
}

func TestInitSchema_NormalizesLegacyTimestamps(t *testing.T) {
	orig := time.Local
	time.Local = time.FixedZone("UTC+5", 5*60*60)
	t.Cleanup(func() { time.Local = orig })

	ctx := context.Background()
	db := newTestDB(t)
	_, err := db.ExecContext(ctx,
		`INSERT INTO speedtests (timestamp, download, upload, ping, error) VALUES (?, ?, ?, ?, NULL)`,
		"2024-01-01T10:00:00.000001", 100.0, 50.0, 20.0)
	require.NoError(t, err)
	require.NoError(t, db.Append(ctx, success(time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC), 80, 40, 15)))

	require.NoError(t, db.InitSchema(ctx))

	instant := time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC)
	w, err := db.QueryAggregate(ctx, instant.Add(-time.Hour), instant.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, w.Samples)
	assert.Equal(t, 100.0, w.Download.Avg)

	w, err = db.QueryAggregate(ctx, instant.Add(4*time.Hour), instant.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, w.Total)

	points, err := db.QueryDistribution(ctx, instant.Add(-time.Hour), instant.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.True(t, points[0].Timestamp.Equal(instant))

	earliest, ok, err := db.QueryEarliestTimestamp(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, earliest.Equal(instant), "got %s", earliest)

	var stored string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT timestamp FROM speedtests ORDER BY timestamp LIMIT 1`).Scan(&stored))
	assert.Equal(t, "2024-01-01T05:00:00Z", stored)
}

func TestInitSchema_KeepsUnparseableTimestamps(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, err := db.ExecContext(ctx, `INSERT INTO speedtests (timestamp, error) VALUES ('garbage', 'x')`)
	require.NoError(t, err)

	require.NoError(t, db.InitSchema(ctx))

	var stored string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT timestamp FROM speedtests`).Scan(&stored))
	assert.Equal(t, "garbage", stored)
}

func TestAppend_TruncatesToWholeSeconds(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, db.Append(ctx, success(start.Add(500*time.Millisecond), 10, 5, 1)))

	w, err := db.QueryAggregate(ctx, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, w.Total)

	w, err = db.QueryAggregate(ctx, start.Add(-time.Second), start)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Total)
}
