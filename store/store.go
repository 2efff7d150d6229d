// Package store implements the durable, transactional persistence layer:
// schema creation, content-addressed position/velocity interning, particle
// and history bookkeeping, and typed singleton scalars, backed by SQLite
// through the mxk/go-sqlite driver exactly as the teacher's pswarmdriver
// command registers it.
package store

import (
	"database/sql"
	"fmt"
	"math"
	"strings"

	_ "github.com/mxk/go-sqlite/sqlite3"

	"github.com/j-r-jones/optsearch/spso"
)

// UnknownReal is the sentinel a real-valued singleton returns when it has
// never been set or holds a non-positive value.
const UnknownReal = math.MaxFloat64

// Store wraps a *sql.DB opened against a SQLite file using the schema
// described in SPEC_FULL.md 4.3. The number of per-dimension integer
// columns on position/velocity is only known once the dimension set is
// known, so the schema is created lazily by Open.
type Store struct {
	db   *sql.DB
	dims []spso.Dimension
}

// Open creates (if necessary) and opens the store at path, building the
// schema for the given dimension set. Write-ahead logging with full
// synchronous writes is requested via DSN parameters, matching the
// durability mode SPEC_FULL.md 4.3 calls for.
func Open(path string, dims []spso.Dimension) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=FULL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	s := &Store{db: db, dims: dims}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func dimColumn(i int) string {
	return fmt.Sprintf("dim_%d", i)
}

func (s *Store) dimColumns() []string {
	cols := make([]string, len(s.dims))
	for i := range s.dims {
		cols[i] = dimColumn(i)
	}
	return cols
}

func (s *Store) exec(stmt string, args ...interface{}) (sql.Result, error) {
	res, err := s.db.Exec(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("store: statement %q: %w", stmt, err)
	}
	return res, nil
}

func (s *Store) createSchema() error {
	dimCols := s.dimColumns()
	dimColDefs := make([]string, len(dimCols))
	for i, c := range dimCols {
		dimColDefs[i] = c + " INTEGER NOT NULL"
	}
	dimColList := ""
	if len(dimColDefs) > 0 {
		dimColList = ", " + strings.Join(dimColDefs, ", ")
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dimension (
			uid INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			min INTEGER NOT NULL,
			max INTEGER NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS position (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fitness REAL,
			visits INTEGER NOT NULL DEFAULT 0
			%s
		)`, dimColList),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS velocity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			count INTEGER NOT NULL DEFAULT 0
			%s
		)`, dimColList),
		`CREATE TABLE IF NOT EXISTS particle (
			id INTEGER PRIMARY KEY,
			position_id INTEGER NOT NULL REFERENCES position(id),
			velocity_id INTEGER NOT NULL REFERENCES velocity(id),
			best_position_id INTEGER NOT NULL REFERENCES position(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_particle_position ON particle(position_id)`,
		`CREATE INDEX IF NOT EXISTS idx_particle_velocity ON particle(velocity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_particle_best_position ON particle(best_position_id)`,
		`CREATE TABLE IF NOT EXISTS particle_history (
			ts INTEGER NOT NULL,
			particle_id INTEGER NOT NULL REFERENCES particle(id),
			position_id INTEGER NOT NULL REFERENCES position(id),
			velocity_id INTEGER NOT NULL REFERENCES velocity(id),
			best_position_id INTEGER NOT NULL REFERENCES position(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_particle_history_particle ON particle_history(particle_id)`,
		`CREATE TABLE IF NOT EXISTS global_best_history (
			ts INTEGER NOT NULL,
			position_id INTEGER NOT NULL REFERENCES position(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_global_best_history_position ON global_best_history(position_id)`,
		`CREATE TABLE IF NOT EXISTS singleton (
			what TEXT PRIMARY KEY,
			value INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS real_singleton (
			what TEXT PRIMARY KEY,
			value REAL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.exec(stmt); err != nil {
			return err
		}
	}

	return s.seedSingletons()
}

func (s *Store) seedSingletons() error {
	intDefaults := map[string]int64{
		singletonConverged:         0,
		singletonBestPos:           0,
		singletonNoMovementCounter: 0,
	}
	for what, v := range intDefaults {
		if _, err := s.exec(
			`INSERT OR IGNORE INTO singleton (what, value) VALUES (?, ?)`, what, v,
		); err != nil {
			return err
		}
	}

	realDefaults := []string{singletonPrevPrevBest, singletonPrevBest, singletonCurrBest}
	for _, what := range realDefaults {
		if _, err := s.exec(
			`INSERT OR IGNORE INTO real_singleton (what, value) VALUES (?, ?)`, what, UnknownReal,
		); err != nil {
			return err
		}
	}
	return nil
}

// VerifyDimensions confirms every persisted dimension matches the caller's
// current dimension set by (uid, name, min, max); a mismatch is fatal to
// resuming from this store.
func (s *Store) VerifyDimensions(dims []spso.Dimension) error {
	rows, err := s.db.Query(`SELECT uid, name, min, max FROM dimension`)
	if err != nil {
		return fmt.Errorf("store: verify dimensions: %w", err)
	}
	defer rows.Close()

	persisted := map[int64]spso.Dimension{}
	for rows.Next() {
		var d spso.Dimension
		if err := rows.Scan(&d.UID, &d.Name, &d.Min, &d.Max); err != nil {
			return fmt.Errorf("store: verify dimensions: scan: %w", err)
		}
		persisted[d.UID] = d
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(persisted) == 0 {
		return s.insertDimensions(dims)
	}

	if len(persisted) != len(dims) {
		return fmt.Errorf("store: dimension count mismatch: store has %d, caller has %d", len(persisted), len(dims))
	}
	for _, d := range dims {
		pd, ok := persisted[d.UID]
		if !ok {
			return fmt.Errorf("store: dimension uid %d not found in store", d.UID)
		}
		if pd != d {
			return fmt.Errorf("store: dimension uid %d mismatch: store has %+v, caller has %+v", d.UID, pd, d)
		}
	}
	return nil
}

func (s *Store) insertDimensions(dims []spso.Dimension) error {
	for _, d := range dims {
		if _, err := s.exec(
			`INSERT INTO dimension (uid, name, min, max) VALUES (?, ?, ?, ?)`,
			d.UID, d.Name, d.Min, d.Max,
		); err != nil {
			return err
		}
	}
	return nil
}
