package history_test

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/boostctl/internal/errors"
	"codeberg.org/mutker/boostctl/internal/history"
	"codeberg.org/mutker/boostctl/internal/logger"
	"codeberg.org/mutker/boostctl/internal/mode"
	"codeberg.org/mutker/boostctl/internal/telemetry"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) history.Config {
	t.Helper()
	dir := t.TempDir()
	return history.Config{
		Enabled:   true,
		DBPath:    filepath.Join(dir, "history.db"),
		BackupDir: filepath.Join(dir, "backups"),
		BatchSize: 100,
	}
}

func snapshot(source string, tick uint64, ts time.Time, values map[telemetry.Metric]float64) telemetry.Snapshot {
	return telemetry.Snapshot{
		Source:    source,
		Mode:      mode.Balance,
		Tick:      tick,
		Timestamp: ts,
		Values:    values,
	}
}

func TestRecordAndQuery(t *testing.T) {
	rec, err := history.NewRecorder(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	assert.True(t, rec.Enabled())
	assert.NotEmpty(t, rec.Session())

	base := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, snapshot("primary", 1, base,
		map[telemetry.Metric]float64{telemetry.CPU: 45.5, telemetry.FPS: 60})))
	rec.Observe(snapshot("network", 1, base.Add(time.Second),
		map[telemetry.Metric]float64{telemetry.Ping: 88}))

	// Unflushed rows are visible to queries.
	all, err := rec.Query(ctx, base.Add(-time.Second), "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "cpu", all[0].Metric)
	assert.Equal(t, 45.5, all[0].Value)
	assert.Equal(t, "balance", all[0].Mode)
	assert.Equal(t, rec.Session(), all[0].Session)
	assert.True(t, base.Equal(all[0].Timestamp))

	network, err := rec.Query(ctx, base.Add(-time.Second), "network")
	require.NoError(t, err)
	require.Len(t, network, 1)
	assert.Equal(t, "ping", network[0].Metric)

	recent, err := rec.Query(ctx, base, "")
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestRecordRejectsEmptySnapshot(t *testing.T) {
	rec, err := history.NewRecorder(testConfig(t), logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	err = rec.Record(context.Background(), telemetry.Snapshot{Source: "primary"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, history.ErrInvalidSnapshot))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = rec.Record(ctx, snapshot("primary", 1, time.Now(), map[telemetry.Metric]float64{telemetry.CPU: 1}))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, history.ErrOperationTimeout))
}

func TestCloseFlushesBuffer(t *testing.T) {
	cfg := testConfig(t)

	rec, err := history.NewRecorder(cfg, logger.Nop())
	require.NoError(t, err)

	ts := time.Now().Add(-time.Second)
	for i := 1; i <= 5; i++ {
		rec.Observe(snapshot("thermal", uint64(i), ts,
			map[telemetry.Metric]float64{telemetry.Temperature: 30}))
	}
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	reopened, err := history.NewRecorder(cfg, logger.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	samples, err := reopened.Query(context.Background(), ts.Add(-time.Minute), "thermal")
	require.NoError(t, err)
	assert.Len(t, samples, 5)
	assert.NotEqual(t, rec.Session(), reopened.Session())
}

func TestPeriodicFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchTimeout = 10 * time.Millisecond

	rec, err := history.NewRecorder(cfg, logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	rec.Observe(snapshot("network", 1, time.Now(), map[telemetry.Metric]float64{telemetry.Ping: 70}))

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	require.Eventually(t, func() bool {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&n); err != nil {
			return false
		}
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchemaMismatchBacksUp(t *testing.T) {
	cfg := testConfig(t)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions (version, applied_at) VALUES (99, 'then');`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	rec, err := history.NewRecorder(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	backups, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "history_v99_")

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	version, err := history.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, history.SchemaVersion, version)
}

func TestDisabledRecorder(t *testing.T) {
	rec, err := history.NewRecorder(history.DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	assert.False(t, rec.Enabled())
	require.NoError(t, rec.Record(context.Background(), telemetry.Snapshot{}))

	_, err = rec.Query(context.Background(), time.Time{}, "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, history.ErrDisabled))
	require.NoError(t, rec.Close())
}

func TestInvalidConfig(t *testing.T) {
	cfg := history.Config{Enabled: true, BatchSize: 1}
	_, err := history.NewRecorder(cfg, logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, history.ErrInvalidDBPath))

	cfg = testConfig(t)
	cfg.BatchSize = 0
	_, err = history.NewRecorder(cfg, logger.Nop())
	require.Error(t, err)
}

func TestObserveLogsErrorCode(t *testing.T) {
	var buf bytes.Buffer
	rec, err := history.NewRecorder(testConfig(t), logger.New(&buf))
	require.NoError(t, err)
	defer rec.Close()

	rec.Observe(telemetry.Snapshot{Source: "primary"})

	assert.Contains(t, buf.String(), `"error_code":"history_invalid_snapshot"`)
	assert.Contains(t, buf.String(), `"source":"primary"`)
}
