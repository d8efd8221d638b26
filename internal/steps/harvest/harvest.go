// Package harvest ingests collection members into the downstream harvest
// target and removes deletion members from it.
//
// Two strategies are registered: "csv" loads CSV content into tables of a
// local SQLite database, and "exec" delegates each file to an external
// harvester process. Per-file failures are recorded on the file so the
// remaining members still get their chance; only infrastructure failures
// abort the step.
package harvest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	_ "modernc.org/sqlite"

	"tideflow/internal/pipefile"
	"tideflow/internal/steps"
)

// NewRunner returns the harvest runner registered under the strategy name.
func NewRunner(strategy, databasePath string, command []string, logger *slog.Logger) (steps.HarvestRunner, error) {
	log := steps.Logger(logger, "harvest")
	switch strategy {
	case "csv":
		if databasePath == "" {
			return nil, steps.Wrap(steps.ErrConfiguration, "harvest", "csv strategy requires database_path", nil)
		}
		return &csvRunner{databasePath: databasePath, log: log}, nil
	case "exec":
		if len(command) == 0 {
			return nil, steps.Wrap(steps.ErrConfiguration, "harvest", "exec strategy requires command", nil)
		}
		return &execRunner{command: command, log: log}, nil
	default:
		return nil, steps.Wrap(steps.ErrConfiguration, "harvest",
			fmt.Sprintf("unknown strategy %q", strategy), nil)
	}
}

// csvRunner loads each CSV member into a table named after the file stem and
// records the load in a harvest_catalog table. Unharvesting a deletion drops
// the table and its catalog row. Members that are not CSV files cannot be
// ingested and record a per-file failure.
type csvRunner struct {
	databasePath string
	log          *slog.Logger
}

func (r *csvRunner) Run(ctx context.Context, files *pipefile.Collection) error {
	db, err := sql.Open("sqlite", r.databasePath)
	if err != nil {
		return steps.Wrap(steps.ErrSystem, "harvest", "open harvest database", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return steps.Wrap(steps.ErrSystem, "harvest", "configure harvest database", err)
		}
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS harvest_catalog (
    name         TEXT PRIMARY KEY,
    table_name   TEXT NOT NULL,
    checksum     TEXT NOT NULL,
    row_count    INTEGER NOT NULL,
    harvested_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
)`); err != nil {
		return steps.Wrap(steps.ErrSystem, "harvest", "create catalog table", err)
	}

	for _, f := range files.PendingHarvest().Files() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.IsDeletion {
			if err := r.unharvest(ctx, db, f); err != nil {
				f.SetPublishError(err)
				continue
			}
		} else {
			if err := r.ingest(ctx, db, f); err != nil {
				f.SetPublishError(err)
				continue
			}
		}
		f.IsHarvested = true
	}
	return nil
}

func (r *csvRunner) ingest(ctx context.Context, db *sql.DB, f *pipefile.File) error {
	if f.FileType != pipefile.TypeCSV {
		return fmt.Errorf("csv harvester cannot ingest %s file %q", f.FileType, f.Name)
	}
	header, rows, err := readCSV(f.SrcPath)
	if err != nil {
		return err
	}
	checksum, err := f.Checksum()
	if err != nil {
		return err
	}

	table := tableName(f.Name)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin harvest transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", table)); err != nil {
		return fmt.Errorf("drop stale table %s: %w", table, err)
	}
	columns := make([]string, len(header))
	placeholders := make([]string, len(header))
	for i, col := range header {
		columns[i] = fmt.Sprintf("%q TEXT", tableName(col))
		placeholders[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(columns, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	insert := fmt.Sprintf("INSERT INTO %q VALUES (%s)", table, strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, row := range rows {
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row into %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO harvest_catalog (name, table_name, checksum, row_count)
VALUES (?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
    table_name   = excluded.table_name,
    checksum     = excluded.checksum,
    row_count    = excluded.row_count,
    harvested_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		f.Name, table, checksum, len(rows)); err != nil {
		return fmt.Errorf("record catalog entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit harvest: %w", err)
	}
	r.log.Info("harvested csv",
		slog.String("file", f.Name),
		slog.String("table", table),
		slog.Int("rows", len(rows)))
	return nil
}

func (r *csvRunner) unharvest(ctx context.Context, db *sql.DB, f *pipefile.File) error {
	table := tableName(f.Name)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q", table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM harvest_catalog WHERE name = ?", f.Name); err != nil {
		return fmt.Errorf("remove catalog entry for %s: %w", f.Name, err)
	}
	r.log.Info("unharvested", slog.String("file", f.Name), slog.String("table", table))
	return nil
}

func readCSV(path string) (header []string, rows [][]string, err error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv: %w", err)
	}
	defer fh.Close()

	reader := csv.NewReader(fh)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("csv %s contains no records", path)
	}
	return records[0], records[1:], nil
}

// tableName maps a file or column name to a safe SQLite identifier.
func tableName(name string) string {
	stem := name
	if i := strings.LastIndex(stem, "."); i > 0 {
		stem = stem[:i]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(stem) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "t_" + out
	}
	return out
}

// execRunner shells out to the configured harvester for each member. The
// action ("harvest" or "unharvest") and the file path are appended to the
// command; a non-zero exit is recorded on the file.
type execRunner struct {
	command []string
	log     *slog.Logger
}

func (r *execRunner) Run(ctx context.Context, files *pipefile.Collection) error {
	for _, f := range files.PendingHarvest().Files() {
		action, path := "harvest", f.SrcPath
		if f.IsDeletion {
			action = "unharvest"
		}
		args := append(append([]string{}, r.command[1:]...), action, path)
		cmd := exec.CommandContext(ctx, r.command[0], args...)
		output, err := cmd.CombinedOutput()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.SetPublishError(fmt.Errorf("%s %q: %w: %s",
				action, f.Name, err, strings.TrimSpace(string(output))))
			continue
		}
		f.IsHarvested = true
		r.log.Info("harvester succeeded",
			slog.String("file", f.Name),
			slog.String("action", action))
	}
	return nil
}
