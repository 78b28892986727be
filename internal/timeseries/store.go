package timeseries

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest-guardian/planet-ndvi/internal/properties"
	"github.com/gocarina/gocsv"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store persists the series of each AOI.
type Store interface {
	Load(ctx context.Context, aoi string) ([]Record, error)
	Save(ctx context.Context, aoi string, records []Record) error
}

// CSVStore keeps one CSV file per AOI, located by Path.
type CSVStore struct {
	Path func(aoi string) string
}

func (s CSVStore) Load(_ context.Context, aoi string) ([]Record, error) {
	file, err := os.Open(s.Path(aoi))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open time series: %w", err)
	}
	defer file.Close()

	var records []Record
	if err := gocsv.UnmarshalFile(file, &records); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read time series: %w", err)
	}
	return records, nil
}

func (s CSVStore) Save(_ context.Context, aoi string, records []Record) error {
	path := s.Path(aoi)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create time series file: %w", err)
	}
	if err := gocsv.MarshalFile(&records, file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write time series: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

const createTableQuery = `
CREATE TABLE IF NOT EXISTS ndvi_timeseries (
	aoi      TEXT             NOT NULL,
	acquired TIMESTAMPTZ      NOT NULL,
	mean     DOUBLE PRECISION NOT NULL,
	sd       DOUBLE PRECISION NOT NULL
)`

// PostgresStore keeps every AOI's series in the ndvi_timeseries table. Save
// replaces the AOI's rows in one transaction.
type PostgresStore struct {
	db *sqlx.DB
}

func ConnectPostgres(cfg properties.PostgresConfig) (*sqlx.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.DBname)

	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to target database: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createTableQuery)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, aoi string) ([]Record, error) {
	var records []Record
	query := `SELECT acquired, mean, sd FROM ndvi_timeseries WHERE aoi = $1 ORDER BY acquired`
	if err := s.db.SelectContext(ctx, &records, query, aoi); err != nil {
		return nil, fmt.Errorf("failed to load time series for %s: %w", aoi, err)
	}
	for i := range records {
		records[i].Timestamp = records[i].Timestamp.UTC()
	}
	return records, nil
}

func (s *PostgresStore) Save(ctx context.Context, aoi string, records []Record) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ndvi_timeseries WHERE aoi = $1`, aoi); err != nil {
		return fmt.Errorf("failed to clear time series for %s: %w", aoi, err)
	}
	for _, r := range records {
		_, err := tx.NamedExecContext(ctx,
			`INSERT INTO ndvi_timeseries (aoi, acquired, mean, sd) VALUES (:aoi, :acquired, :mean, :sd)`,
			map[string]interface{}{"aoi": aoi, "acquired": r.Timestamp, "mean": r.Mean, "sd": r.SD})
		if err != nil {
			return fmt.Errorf("failed to insert time series row for %s: %w", aoi, err)
		}
	}
	return tx.Commit()
}

// Update merges fresh records into the stored series and saves the result.
func Update(ctx context.Context, store Store, aoi string, fresh []Record, policy MergePolicy) ([]Record, error) {
	prior, err := store.Load(ctx, aoi)
	if err != nil {
		return nil, err
	}
	merged := Merge(prior, fresh, policy)
	if err := store.Save(ctx, aoi, merged); err != nil {
		return nil, err
	}
	return merged, nil
}
