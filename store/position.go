package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/j-r-jones/optsearch/spso"
)

// StorePosition interns pos by content: if a row with matching integer
// components already exists, its visits counter is incremented and its id
// returned; otherwise a new row is inserted with visits=1.
func (s *Store) StorePosition(pos spso.Position) (int64, error) {
	id, found, err := s.findPosition(pos)
	if err != nil {
		return 0, err
	}
	if found {
		if _, err := s.exec(`UPDATE position SET visits = visits + 1 WHERE id = ?`, id); err != nil {
			return 0, err
		}
		return id, nil
	}

	cols := s.dimColumns()
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, v := range pos {
		placeholders[i] = "?"
		args[i] = v
	}
	colList := ""
	if len(cols) > 0 {
		colList = ", " + strings.Join(cols, ", ")
	}
	phList := ""
	if len(placeholders) > 0 {
		phList = ", " + strings.Join(placeholders, ", ")
	}

	stmt := fmt.Sprintf(`INSERT INTO position (fitness, visits%s) VALUES (NULL, 1%s)`, colList, phList)
	res, err := s.exec(stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) findPosition(pos spso.Position) (id int64, found bool, err error) {
	cols := s.dimColumns()
	where := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		where[i] = c + " = ?"
		args[i] = pos[i]
	}
	whereClause := "1=1"
	if len(where) > 0 {
		whereClause = strings.Join(where, " AND ")
	}

	stmt := fmt.Sprintf(`SELECT id FROM position WHERE %s LIMIT 1`, whereClause)
	row := s.db.QueryRow(stmt, args...)
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: find position: %w", err)
	}
	return id, true, nil
}

// PositionByID retrieves a stored position's components, fitness, and
// visit count. A position whose fitness has never been recorded reports
// UnknownReal.
func (s *Store) PositionByID(id int64) (pos spso.Position, fitness float64, visits int, err error) {
	cols := s.dimColumns()
	colList := ""
	if len(cols) > 0 {
		colList = ", " + strings.Join(cols, ", ")
	}
	stmt := fmt.Sprintf(`SELECT fitness, visits%s FROM position WHERE id = ?`, colList)

	dest := make([]interface{}, 2+len(cols))
	var fit sql.NullFloat64
	var vis int
	dest[0] = &fit
	dest[1] = &vis
	vals := make([]int, len(cols))
	for i := range vals {
		dest[2+i] = &vals[i]
	}

	row := s.db.QueryRow(stmt, id)
	if err := row.Scan(dest...); err != nil {
		return nil, 0, 0, fmt.Errorf("store: position by id %d: %w", id, err)
	}
	fitness = UnknownReal
	if fit.Valid {
		fitness = fit.Float64
	}
	return spso.Position(vals), fitness, vis, nil
}

// UpdatePositionFitness overwrites the position's fitness column
// unconditionally; because fitness is noisy, later observations overwrite
// earlier ones by design.
func (s *Store) UpdatePositionFitness(posID int64, fitness float64) error {
	_, err := s.exec(`UPDATE position SET fitness = ? WHERE id = ?`, fitness, posID)
	return err
}

// StoreVelocity interns vel by content, analogous to StorePosition but
// tracking a "count" column instead of "visits".
func (s *Store) StoreVelocity(vel spso.Velocity) (int64, error) {
	id, found, err := s.findVelocity(vel)
	if err != nil {
		return 0, err
	}
	if found {
		if _, err := s.exec(`UPDATE velocity SET count = count + 1 WHERE id = ?`, id); err != nil {
			return 0, err
		}
		return id, nil
	}

	cols := s.dimColumns()
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, v := range vel {
		placeholders[i] = "?"
		args[i] = v
	}
	colList := ""
	if len(cols) > 0 {
		colList = ", " + strings.Join(cols, ", ")
	}
	phList := ""
	if len(placeholders) > 0 {
		phList = ", " + strings.Join(placeholders, ", ")
	}

	stmt := fmt.Sprintf(`INSERT INTO velocity (count%s) VALUES (1%s)`, colList, phList)
	res, err := s.exec(stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) findVelocity(vel spso.Velocity) (id int64, found bool, err error) {
	cols := s.dimColumns()
	where := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		where[i] = c + " = ?"
		args[i] = vel[i]
	}
	whereClause := "1=1"
	if len(where) > 0 {
		whereClause = strings.Join(where, " AND ")
	}

	stmt := fmt.Sprintf(`SELECT id FROM velocity WHERE %s LIMIT 1`, whereClause)
	row := s.db.QueryRow(stmt, args...)
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: find velocity: %w", err)
	}
	return id, true, nil
}

// VelocityByID retrieves a stored velocity's components and visit count.
func (s *Store) VelocityByID(id int64) (vel spso.Velocity, count int, err error) {
	cols := s.dimColumns()
	colList := ""
	if len(cols) > 0 {
		colList = ", " + strings.Join(cols, ", ")
	}
	stmt := fmt.Sprintf(`SELECT count%s FROM velocity WHERE id = ?`, colList)

	var cnt int
	dest := make([]interface{}, 1+len(cols))
	dest[0] = &cnt
	vals := make([]int, len(cols))
	for i := range vals {
		dest[1+i] = &vals[i]
	}

	row := s.db.QueryRow(stmt, id)
	if err := row.Scan(dest...); err != nil {
		return nil, 0, fmt.Errorf("store: velocity by id %d: %w", id, err)
	}
	return spso.Velocity(vals), cnt, nil
}

// PositionCount returns the number of distinct positions discovered so
// far, used as "known_positions" by the SPSO velocity update's random
// restart rule.
func (s *Store) PositionCount() (int, error) {
	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM position`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: position count: %w", err)
	}
	return n, nil
}
