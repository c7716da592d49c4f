package database

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"flight_tracks/internal/models"
)

// ErrAircraftNotFound is returned by Lookup when the registry has no record
var ErrAircraftNotFound = errors.New("aircraft not found")

type AircraftRepository interface {
	InsertBatch(aircraft []*models.Aircraft) error
	IsTablePopulated() (bool, error)
	LoadFromMultipleCSV(csvPaths []string, batchSize int) error
	Lookup(ctx context.Context, icao24 models.ICAO24) (*models.Aircraft, error)
}

type aircraftRepository struct {
	db *sql.DB
}

func NewAircraftRepository(db *sql.DB) AircraftRepository {
	return &aircraftRepository{db: db}
}

// InsertBatch inserts one or more aircraft records in a single transaction
func (r *aircraftRepository) InsertBatch(aircraft []*models.Aircraft) error {
	if len(aircraft) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO aircraft (
		icao24, registration, typecode, manufacturerName, model, operator,
		operatorCallsign, operatorIcao, owner, country, built
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ac := range aircraft {
		if _, err := stmt.Exec(
			string(ac.ICAO24), ac.Registration, ac.TypeCode, ac.ManufacturerName,
			ac.Model, ac.Operator, ac.OperatorCallsign, ac.OperatorICAO,
			ac.Owner, ac.Country, ac.Built,
		); err != nil {
			return fmt.Errorf("failed to insert aircraft %s: %w", ac.ICAO24, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *aircraftRepository) IsTablePopulated() (bool, error) {
	var ignored int
	err := r.db.QueryRow("SELECT 1 FROM aircraft LIMIT 1").Scan(&ignored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check aircraft table: %w", err)
	}
	return true, nil
}

// Lookup returns the registry record for icao24
func (r *aircraftRepository) Lookup(ctx context.Context, icao24 models.ICAO24) (*models.Aircraft, error) {
	var ac models.Aircraft
	var id string

	err := r.db.QueryRowContext(ctx, `SELECT
		icao24, registration, typecode, manufacturerName, model, operator,
		operatorCallsign, operatorIcao, owner, country, built
	FROM aircraft WHERE icao24 = ?`, string(icao24)).Scan(
		&id, &ac.Registration, &ac.TypeCode, &ac.ManufacturerName, &ac.Model,
		&ac.Operator, &ac.OperatorCallsign, &ac.OperatorICAO, &ac.Owner,
		&ac.Country, &ac.Built,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAircraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up aircraft %s: %w", icao24, err)
	}

	ac.ICAO24 = models.ICAO24(id)
	return &ac, nil
}

// LoadFromMultipleCSV loads aircraft from CSV files in the OpenSky aircraft database layout.
// The export is split across files; only the first file's header is used to map columns.
func (r *aircraftRepository) LoadFromMultipleCSV(csvPaths []string, batchSize int) error {
	if batchSize <= 0 {
		return fmt.Errorf("batch size must be greater than 0")
	}

	var headerMap map[string]int
	var expectedFields int
	batch := make([]*models.Aircraft, 0, batchSize)

	for fileIdx, csvPath := range csvPaths {
		err := func() error {
			file, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("failed to open CSV file %s: %w", csvPath, err)
			}
			defer file.Close()

			reader := csv.NewReader(file)
			reader.LazyQuotes = true
			reader.FieldsPerRecord = -1

			header, err := reader.Read()
			if err != nil {
				return fmt.Errorf("failed to read CSV header from %s: %w", csvPath, err)
			}

			if fileIdx == 0 {
				expectedFields = len(header)
				headerMap = make(map[string]int)
				for i, h := range header {
					headerMap[strings.Trim(strings.TrimSpace(h), "'\"")] = i
				}
			}

			for {
				record, err := reader.Read()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to read CSV record from %s: %w", csvPath, err)
				}

				if len(record) != expectedFields {
					continue
				}

				// Rows with a malformed address can never match a lookup
				icao24, err := models.ParseICAO24(getField(record, headerMap, "icao24"))
				if err != nil {
					continue
				}

				batch = append(batch, &models.Aircraft{
					ICAO24:           icao24,
					Registration:     getField(record, headerMap, "registration"),
					TypeCode:         getField(record, headerMap, "typecode"),
					ManufacturerName: getField(record, headerMap, "manufacturerName"),
					Model:            getField(record, headerMap, "model"),
					Operator:         getField(record, headerMap, "operator"),
					OperatorCallsign: getField(record, headerMap, "operatorCallsign"),
					OperatorICAO:     getField(record, headerMap, "operatorIcao"),
					Owner:            getField(record, headerMap, "owner"),
					Country:          getField(record, headerMap, "country"),
					Built:            getField(record, headerMap, "built"),
				})

				if len(batch) >= batchSize {
					if err := r.InsertBatch(batch); err != nil {
						return fmt.Errorf("failed to insert batch: %w", err)
					}
					batch = batch[:0]
				}
			}
		}()
		if err != nil {
			return err
		}
	}

	if len(batch) > 0 {
		if err := r.InsertBatch(batch); err != nil {
			return fmt.Errorf("failed to insert final batch: %w", err)
		}
	}

	return nil
}

// getField safely retrieves a field from a CSV record by header name
func getField(record []string, headerMap map[string]int, fieldName string) string {
	if idx, ok := headerMap[fieldName]; ok && idx < len(record) {
		return strings.Trim(strings.TrimSpace(record[idx]), "'\"")
	}
	return ""
}
