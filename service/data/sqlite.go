package data

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/config"
	"github.com/khaledhikmat/vs-counter/service/lgr"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type sqliteService struct {
	CfgSvc config.IService
	db     *sql.DB
}

func NewSqlite(cfgsvc config.IService) (IService, error) {
	path := cfgsvc.GetDataPath()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating data folder: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time; the pipeline and the mode processor both write
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	lgr.Logger.Info("sqlite data service ready", slog.String("path", path))
	return &sqliteService{
		CfgSvc: cfgsvc,
		db:     db,
	}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// m is not closed: that would close db

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	lgr.Logger.Debug("migrate", slog.String("msg", strings.TrimSpace(fmt.Sprintf(format, v...))))
}

func (migrateLogger) Verbose() bool {
	return false
}

func (svc *sqliteService) NewCrossingRecord(rec model.LedgerRecord) error {
	_, err := svc.db.Exec(
		`INSERT INTO crossings (ts, class_name, total_so_far) VALUES (?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.ClassName, rec.TotalSoFar,
	)
	return err
}

func (svc *sqliteService) RetrieveCrossings(limit int) ([]model.LedgerRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := svc.db.Query(`
		SELECT ts, class_name, total_so_far FROM (
			SELECT id, ts, class_name, total_so_far FROM crossings ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.LedgerRecord{}
	for rows.Next() {
		var (
			ts  string
			rec model.LedgerRecord
		)
		if err := rows.Scan(&ts, &rec.ClassName, &rec.TotalSoFar); err != nil {
			return nil, err
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("crossing timestamp %q: %w", ts, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (svc *sqliteService) NewError(err interface{}) error {
	rec := toErrorRecord(err, time.Now().Unix())
	misc, mErr := json.Marshal(rec.Misc)
	if mErr != nil {
		return mErr
	}
	_, dbErr := svc.db.Exec(
		`INSERT INTO errors (ts, processor, inner_error, message, stack_trace, misc) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Processor, rec.Inner, rec.Message, rec.StackTrace, string(misc),
	)
	return dbErr
}

func (svc *sqliteService) NewPipelineStats(stats model.PipelineStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newStats("pipeline", stats.Name, stats.Timestamp, stats)
}

func (svc *sqliteService) NewStreamStats(stats model.StreamStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newStats("stream", stats.Name, stats.Timestamp, stats)
}

func (svc *sqliteService) NewRecorderStats(stats model.RecorderStats) error {
	stats.Timestamp = time.Now().Unix()
	return svc.newStats("recorder", stats.Name, stats.Timestamp, stats)
}

func (svc *sqliteService) newStats(kind, name string, ts int64, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = svc.db.Exec(`INSERT INTO stats (ts, kind, name, payload) VALUES (?, ?, ?, ?)`, ts, kind, name, string(b))
	return err
}

func (svc *sqliteService) Close() error {
	return svc.db.Close()
}
