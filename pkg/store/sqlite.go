// Package store pkg/store/sqlite.go provides SQLite-backed persistence
// for runs, metric points and findings.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/vipdiag/vipdiag/pkg/models"
)

const (
	dbOperationTimeout = 5 * time.Second

	createTablesSQL = `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at_ms INTEGER NOT NULL,
			ended_at_ms INTEGER,
			status TEXT NOT NULL,
			sampler_health TEXT
		);

		CREATE TABLE IF NOT EXISTS points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			source TEXT NOT NULL,
			name TEXT NOT NULL,
			tag_key TEXT NOT NULL,
			tags TEXT,
			timestamp_ms INTEGER NOT NULL,
			value REAL NOT NULL,
			UNIQUE (run_id, source, name, tag_key, timestamp_ms),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);

		CREATE TABLE IF NOT EXISTS findings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			window_start_ms INTEGER NOT NULL,
			window_end_ms INTEGER NOT NULL,
			evidence TEXT,
			message TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);

		CREATE INDEX IF NOT EXISTS idx_points_run_name_time
			ON points(run_id, name, timestamp_ms);
		CREATE INDEX IF NOT EXISTS idx_findings_run
			ON findings(run_id);
	`
)

// SQLiteStore implements Store on a single SQLite file. A mutex
// serializes the write path; reads go through SQLite's snapshot
// semantics unlocked.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger

	writeMu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at dbPath and
// initializes the schema.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedOpenDB, err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToEnableWAL, err)
	}

	if _, err := db.Exec(createTablesSQL); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToInit, err)
	}

	return &SQLiteStore{db: db, logger: logger.Named("store")}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun registers a new active run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.Run) error {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	health, err := marshalHealth(run.SamplerHealth)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at_ms, status, sampler_health) VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixMilli(), string(run.Status), health,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToInsert, err)
	}

	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at_ms, ended_at_ms, status, sampler_health FROM runs WHERE run_id = ?`,
		runID,
	)

	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at_ms, ended_at_ms, status, sampler_health
		 FROM runs ORDER BY started_at_ms DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToQuery, err)
	}
	defer closeRows(rows, s.logger)

	var runs []models.Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// CloseRun stamps the end time and final health, rejecting repeat closes.
func (s *SQLiteStore) CloseRun(
	ctx context.Context,
	runID string,
	status models.RunStatus,
	health map[string]models.SamplerHealth,
) (*models.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.runStatus(ctx, runID)
	if err != nil {
		return nil, err
	}

	if current != models.RunActive {
		return nil, fmt.Errorf("%w: %s", ErrRunClosed, runID)
	}

	healthJSON, err := marshalHealth(health)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET ended_at_ms = ?, status = ?, sampler_health = ? WHERE run_id = ?`,
		time.Now().UnixMilli(), string(status), healthJSON, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToInsert, err)
	}

	return s.GetRun(ctx, runID)
}

// DeleteRun removes the run and everything it owns.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToBeginTx, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("failed to rollback delete", zap.Error(rbErr))
			}
		}
	}()

	for _, stmt := range []string{
		`DELETE FROM points WHERE run_id = ?`,
		`DELETE FROM findings WHERE run_id = ?`,
		`DELETE FROM runs WHERE run_id = ?`,
	} {
		if _, err = tx.ExecContext(ctx, stmt, runID); err != nil {
			return fmt.Errorf("%w: %w", errFailedToDelete, err)
		}
	}

	return tx.Commit()
}

// Append stores one metric point for an active run.
func (s *SQLiteStore) Append(ctx context.Context, point *models.MetricPoint) error {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	status, err := s.runStatus(ctx, point.RunID)
	if err != nil {
		return err
	}

	if status != models.RunActive {
		return fmt.Errorf("%w: %s", ErrRunClosed, point.RunID)
	}

	var tagsJSON []byte
	if len(point.Tags) > 0 {
		tagsJSON, err = json.Marshal(point.Tags)
		if err != nil {
			return fmt.Errorf("%w: %w", errFailedToInsert, err)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO points (run_id, source, name, tag_key, tags, timestamp_ms, value)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		point.RunID, string(point.Source), point.Name,
		models.TagKey(point.Tags), string(tagsJSON),
		point.Timestamp.UnixMilli(), point.Value,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s@%d", ErrDuplicatePoint, point.Name, point.Timestamp.UnixMilli())
		}

		return fmt.Errorf("%w: %w", errFailedToInsert, err)
	}

	return nil
}

// Query returns points matching the filter, timestamp-ascending.
func (s *SQLiteStore) Query(ctx context.Context, filter *models.PointFilter) ([]models.MetricPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	qb := newQueryBuilder()
	qb.addRunFilter(filter.RunID)
	qb.addNameFilter(filter.Name)
	qb.addSourceFilter(filter.Source)
	qb.addTimeRangeFilter(filter.Start, filter.End)
	query, args := qb.finalize()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToQuery, err)
	}
	defer closeRows(rows, s.logger)

	var points []models.MetricPoint

	for rows.Next() {
		point, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}

		// Tag filters match on containment, which is simpler done here
		// than in SQL against the serialized column.
		if !tagsMatch(point.Tags, filter.Tags) {
			continue
		}

		points = append(points, *point)
	}

	return points, rows.Err()
}

// ReplaceFindings swaps the run's finding set in one transaction so
// re-analysis is idempotent.
func (s *SQLiteStore) ReplaceFindings(ctx context.Context, runID string, findings []models.Finding) error {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.runStatus(ctx, runID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToBeginTx, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("failed to rollback findings", zap.Error(rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM findings WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("%w: %w", errFailedToDelete, err)
	}

	for i := range findings {
		f := &findings[i]

		var evidence []byte

		evidence, err = json.Marshal(f.Evidence)
		if err != nil {
			return fmt.Errorf("%w: %w", errFailedToInsert, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO findings (run_id, category, severity, window_start_ms, window_end_ms, evidence, message)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, string(f.Category), string(f.Severity),
			f.Window.Start.UnixMilli(), f.Window.End.UnixMilli(),
			string(evidence), f.Message,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", errFailedToInsert, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetFindings(ctx context.Context, runID string) ([]models.Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, category, severity, window_start_ms, window_end_ms, evidence, message
		 FROM findings WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToQuery, err)
	}
	defer closeRows(rows, s.logger)

	var findings []models.Finding

	for rows.Next() {
		var (
			f                  models.Finding
			startMS, endMS     int64
			evidence, category string
			severity           string
		)

		if err := rows.Scan(&f.RunID, &category, &severity, &startMS, &endMS, &evidence, &f.Message); err != nil {
			return nil, fmt.Errorf("%w: %w", errFailedToScan, err)
		}

		f.Category = models.Category(category)
		f.Severity = models.Severity(severity)
		f.Window = models.TimeRange{
			Start: time.UnixMilli(startMS),
			End:   time.UnixMilli(endMS),
		}

		if evidence != "" {
			if err := json.Unmarshal([]byte(evidence), &f.Evidence); err != nil {
				return nil, fmt.Errorf("%w: %w", errFailedToScan, err)
			}
		}

		findings = append(findings, f)
	}

	return findings, rows.Err()
}

// runStatus fetches the current status, mapping a missing row to
// ErrRunNotFound.
func (s *SQLiteStore) runStatus(ctx context.Context, runID string) (models.RunStatus, error) {
	var status string

	err := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id = ?`, runID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if err != nil {
		return "", fmt.Errorf("%w: %w", errFailedToQuery, err)
	}

	return models.RunStatus(status), nil
}

// queryBuilder helps construct point queries with optional filters.
type queryBuilder struct {
	query string
	args  []interface{}
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{
		query: `
			SELECT run_id, source, name, tags, timestamp_ms, value
			FROM points
			WHERE 1=1
		`,
		args: make([]interface{}, 0),
	}
}

func (qb *queryBuilder) addRunFilter(runID string) {
	if runID != "" {
		qb.query += " AND run_id = ?"
		qb.args = append(qb.args, runID)
	}
}

func (qb *queryBuilder) addNameFilter(name string) {
	if name != "" {
		qb.query += " AND name = ?"
		qb.args = append(qb.args, name)
	}
}

func (qb *queryBuilder) addSourceFilter(source models.Source) {
	if source != "" {
		qb.query += " AND source = ?"
		qb.args = append(qb.args, string(source))
	}
}

func (qb *queryBuilder) addTimeRangeFilter(start, end time.Time) {
	if !start.IsZero() {
		qb.query += " AND timestamp_ms >= ?"
		qb.args = append(qb.args, start.UnixMilli())
	}

	if !end.IsZero() {
		qb.query += " AND timestamp_ms <= ?"
		qb.args = append(qb.args, end.UnixMilli())
	}
}

func (qb *queryBuilder) finalize() (queryString string, queryArgs []interface{}) {
	qb.query += " ORDER BY timestamp_ms ASC, name ASC, tag_key ASC"
	return qb.query, qb.args
}

func scanPoint(rows *sql.Rows) (*models.MetricPoint, error) {
	var (
		p           models.MetricPoint
		source      string
		tags        sql.NullString
		timestampMS int64
	)

	if err := rows.Scan(&p.RunID, &source, &p.Name, &tags, &timestampMS, &p.Value); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToScan, err)
	}

	p.Source = models.Source(source)
	p.Timestamp = time.UnixMilli(timestampMS)

	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &p.Tags); err != nil {
			return nil, fmt.Errorf("%w: %w", errFailedToScan, err)
		}
	}

	return &p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run         models.Run
		startedMS   int64
		endedMS     sql.NullInt64
		status      string
		healthJSON  sql.NullString
		samplerInfo map[string]models.SamplerHealth
	)

	err := row.Scan(&run.ID, &startedMS, &endedMS, &status, &healthJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToScan, err)
	}

	run.StartedAt = time.UnixMilli(startedMS)
	run.Status = models.RunStatus(status)

	if endedMS.Valid {
		ended := time.UnixMilli(endedMS.Int64)
		run.EndedAt = &ended
	}

	if healthJSON.Valid && healthJSON.String != "" {
		if err := json.Unmarshal([]byte(healthJSON.String), &samplerInfo); err != nil {
			return nil, fmt.Errorf("%w: %w", errFailedToScan, err)
		}

		run.SamplerHealth = samplerInfo
	}

	return &run, nil
}

func marshalHealth(health map[string]models.SamplerHealth) (string, error) {
	if len(health) == 0 {
		return "", nil
	}

	data, err := json.Marshal(health)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errFailedToInsert, err)
	}

	return string(data), nil
}

func tagsMatch(tags, want map[string]string) bool {
	for k, v := range want {
		if tags[k] != v {
			return false
		}
	}

	return true
}

func closeRows(rows *sql.Rows, logger *zap.Logger) {
	if err := rows.Close(); err != nil {
		logger.Error("failed to close rows", zap.Error(err))
	}
}
