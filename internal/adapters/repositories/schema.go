package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	platformdb "storm-truck-count/internal/platform/db"
	"strings"
)

// Initialize the active-trucks table used for local runs.
// The statements are portable across SQLite and Postgres.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createActiveTrucksQuery := `
	CREATE TABLE IF NOT EXISTS ACTIVE_TRUCKS (
		TRUCK_ID VARCHAR(64) PRIMARY KEY,
		DISTRICT VARCHAR(64) NOT NULL,
		REPORTED_AT VARCHAR(32) NOT NULL
	);
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS IDX_ACTIVE_TRUCKS_DISTRICT
	ON ACTIVE_TRUCKS(DISTRICT);
	`

	statements := []string{
		createActiveTrucksQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type TruckSeed struct {
	TruckID    string `json:"truck_id"`
	District   string `json:"district"`
	ReportedAt string `json:"reported_at"`
}

// Replace the active-trucks table contents with the trucks in a JSON file.
func SeedFromJSON(ctx context.Context, db *sql.DB, driver, jsonPath string) (int, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, fmt.Errorf("seed trucks: read %q: %w", jsonPath, err)
	}

	var data []TruckSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return 0, fmt.Errorf("seed trucks: parse json: %w", err)
	}

	return Seed(ctx, db, driver, data)
}

// Replace the active-trucks table contents with trucks.
func Seed(ctx context.Context, db *sql.DB, driver string, trucks []TruckSeed) (int, error) {
	rows := make([]TruckSeed, 0, len(trucks))
	for i, item := range trucks {
		id := strings.TrimSpace(item.TruckID)
		if id == "" {
			return 0, fmt.Errorf("seed trucks: item at index %d: truck_id cannot be empty", i+1)
		}

		district := strings.TrimSpace(item.District)
		if district == "" {
			return 0, fmt.Errorf("seed trucks: item %q: district cannot be empty", id)
		}
		rows = append(rows, TruckSeed{TruckID: id, District: district, ReportedAt: item.ReportedAt})
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seed trucks: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ACTIVE_TRUCKS;`); err != nil {
		return 0, fmt.Errorf("seed trucks: clear table: %w", err)
	}

	query := `
	INSERT INTO ACTIVE_TRUCKS (
		TRUCK_ID,
		DISTRICT,
		REPORTED_AT
	)
	VALUES ($1, $2, $3);
	`
	if driver == platformdb.DriverSQLite {
		query = strings.NewReplacer("$1", "?", "$2", "?", "$3", "?").Replace(query)
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("seed trucks: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, tr := range rows {
		if _, err := stmt.ExecContext(ctx, tr.TruckID, tr.District, tr.ReportedAt); err != nil {
			return 0, fmt.Errorf("seed trucks: insert truck_id=%q: %w", tr.TruckID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seed trucks: commit tx: %w", err)
	}

	return len(rows), nil
}
