package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rmonteiro-eng/mainframe-normalizer/internal/models"
)

func ConnectDB(connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	return dbpool, nil
}

type PostgresDBManager struct {
	dbpool *pgxpool.Pool
	ctx    context.Context
}

func NewPostgresDBManager(ctx context.Context, pool *pgxpool.Pool) *PostgresDBManager {
	return &PostgresDBManager{dbpool: pool, ctx: ctx}
}

func (m *PostgresDBManager) CreateExtractRunsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS extract_runs (
		id SERIAL PRIMARY KEY,
		extract_path VARCHAR(1024) NOT NULL,
		started_at TIMESTAMP NOT NULL,
		status VARCHAR(50) NOT NULL CHECK (status IN ('DONE', 'DONE_WITH_ERRORS', 'PROCESSING', 'FATAL')),
		checksum VARCHAR(64),
		normalization jsonb,
		validation jsonb,
		errors jsonb
	);`

	_, err := m.dbpool.Exec(m.ctx, query)
	if err != nil {
		return fmt.Errorf("error creating extract_runs table: %v", err)
	}

	return nil
}

func (m *PostgresDBManager) CreateDecodedRecordsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS decoded_records (
		id BIGSERIAL PRIMARY KEY,
		run_id INTEGER NOT NULL REFERENCES extract_runs(id),
		record_index INTEGER NOT NULL,
		fields jsonb NOT NULL
	);`

	_, err := m.dbpool.Exec(m.ctx, query)
	if err != nil {
		return fmt.Errorf("error creating decoded_records table: %v", err)
	}

	return nil
}

func (m *PostgresDBManager) InsertExtractRun(extractPath string, startedAt time.Time, status string, checksum string) (int, error) {
	query := `
	INSERT INTO extract_runs (extract_path, started_at, status, checksum)
	VALUES ($1, $2, $3, $4)
	RETURNING id;`

	var runID int
	err := m.dbpool.QueryRow(m.ctx, query, extractPath, startedAt, status, checksum).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("error inserting extract run: %v", err)
	}

	return runID, nil
}

func (m *PostgresDBManager) UpdateRunStatus(runID int, status string, errors any) error {
	query := `
	UPDATE extract_runs
	SET status = $1,
		errors = $2
	WHERE id = $3;`

	_, err := m.dbpool.Exec(m.ctx, query, status, errors, runID)
	if err != nil {
		return fmt.Errorf("error updating run status: %v", err)
	}

	return nil
}

func (m *PostgresDBManager) SaveRunReport(runID int, metadata any, validation any) error {
	query := `
	UPDATE extract_runs
	SET normalization = $1,
		validation = $2
	WHERE id = $3;`

	_, err := m.dbpool.Exec(m.ctx, query, metadata, validation, runID)
	if err != nil {
		return fmt.Errorf("error saving run report: %v", err)
	}

	return nil
}

func (m *PostgresDBManager) IsExtractAlreadyProcessed(checksum string) (bool, error) {
	query := `
	SELECT id
	FROM extract_runs
	WHERE checksum = $1 AND status IN ('DONE', 'DONE_WITH_ERRORS');`

	var id int

	err := m.dbpool.QueryRow(m.ctx, query, checksum).Scan(&id)

	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("error finding extract run by checksum: %v", err)
	}

	return true, nil
}

// InsertDecodedRecords bulk-loads a run's records with the COPY protocol;
// decoded batches routinely run to hundreds of thousands of rows.
func (m *PostgresDBManager) InsertDecodedRecords(runID int, records []models.DecodedRecord) error {
	if len(records) == 0 {
		return nil
	}

	columnNames := []string{"run_id", "record_index", "fields"}

	copySource := pgx.CopyFromSlice(len(records), func(i int) ([]interface{}, error) {
		fields, err := json.Marshal(records[i])
		if err != nil {
			return nil, fmt.Errorf("error marshaling record %d: %w", i, err)
		}
		return []interface{}{runID, i, fields}, nil
	})

	log.Printf("Bulk loading %d decoded records for run %d", len(records), runID)
	_, err := m.dbpool.CopyFrom(
		m.ctx,
		pgx.Identifier{"decoded_records"},
		columnNames,
		copySource,
	)
	if err != nil {
		return fmt.Errorf("error bulk loading decoded records for run %d: %v", runID, err)
	}

	return nil
}
