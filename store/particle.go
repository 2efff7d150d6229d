package store

import (
	"database/sql"
	"fmt"

	"github.com/j-r-jones/optsearch/spso"
)

// StoreParticle inserts a new particle row if p.UID is unknown to the
// store, otherwise delegates to UpdateParticle.
func (s *Store) StoreParticle(p spso.Particle) error {
	known, err := s.particleExists(p.UID)
	if err != nil {
		return err
	}
	if known {
		return s.UpdateParticle(p)
	}

	posID, err := s.StorePosition(p.Position)
	if err != nil {
		return err
	}
	velID, err := s.StoreVelocity(p.Velocity)
	if err != nil {
		return err
	}
	bestID, err := s.StorePosition(p.PrevBestPosition)
	if err != nil {
		return err
	}

	_, err = s.exec(
		`INSERT INTO particle (id, position_id, velocity_id, best_position_id) VALUES (?, ?, ?, ?)`,
		p.UID, posID, velID, bestID,
	)
	return err
}

func (s *Store) particleExists(uid int) (bool, error) {
	var id int
	row := s.db.QueryRow(`SELECT id FROM particle WHERE id = ?`, uid)
	err := row.Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: particle exists: %w", err)
	}
	return true, nil
}

// UpdateParticle re-interns the particle's position, velocity, and
// previous-best position (bumping their visit/count columns), updates the
// particle row's three foreign keys, and appends a particle_history row
// only when the position actually changed.
func (s *Store) UpdateParticle(p spso.Particle) error {
	var prevPositionID sql.NullInt64
	row := s.db.QueryRow(`SELECT position_id FROM particle WHERE id = ?`, p.UID)
	if err := row.Scan(&prevPositionID); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("store: update particle: lookup previous position: %w", err)
	}

	posID, err := s.StorePosition(p.Position)
	if err != nil {
		return err
	}
	velID, err := s.StoreVelocity(p.Velocity)
	if err != nil {
		return err
	}
	bestID, err := s.StorePosition(p.PrevBestPosition)
	if err != nil {
		return err
	}

	if _, err := s.exec(
		`UPDATE particle SET position_id = ?, velocity_id = ?, best_position_id = ? WHERE id = ?`,
		posID, velID, bestID, p.UID,
	); err != nil {
		return err
	}

	moved := !prevPositionID.Valid || prevPositionID.Int64 != posID
	if moved {
		if _, err := s.exec(
			`INSERT INTO particle_history (ts, particle_id, position_id, velocity_id, best_position_id) VALUES (strftime('%s','now'), ?, ?, ?, ?)`,
			p.UID, posID, velID, bestID,
		); err != nil {
			return err
		}
	}
	return nil
}

// RecordGlobalBestHistory appends an append-only record of a global-best
// improvement, for post-hoc analysis; the search algorithm never reads
// this table back.
func (s *Store) RecordGlobalBestHistory(positionID int64) error {
	_, err := s.exec(
		`INSERT INTO global_best_history (ts, position_id) VALUES (strftime('%s','now'), ?)`,
		positionID,
	)
	return err
}

// ParticleCount returns the number of persisted particles, used by a
// resuming master to decide whether to build a fresh swarm or reload one.
func (s *Store) ParticleCount() (int, error) {
	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM particle`)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: particle count: %w", err)
	}
	return n, nil
}

// LoadSwarm reconstructs the full swarm from its persisted rows, in
// ascending particle id order, for resuming a search from a checkpoint.
func (s *Store) LoadSwarm() (spso.Swarm, error) {
	rows, err := s.db.Query(`SELECT id, position_id, velocity_id, best_position_id FROM particle ORDER BY id`)
	if err != nil {
		return spso.Swarm{}, fmt.Errorf("store: load swarm: %w", err)
	}
	defer rows.Close()

	type row struct {
		uid            int
		positionID     int64
		velocityID     int64
		bestPositionID int64
	}
	var raw []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.uid, &r.positionID, &r.velocityID, &r.bestPositionID); err != nil {
			return spso.Swarm{}, fmt.Errorf("store: load swarm: scan: %w", err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return spso.Swarm{}, err
	}

	particles := make([]spso.Particle, len(raw))
	for i, r := range raw {
		pos, _, _, err := s.PositionByID(r.positionID)
		if err != nil {
			return spso.Swarm{}, err
		}
		vel, _, err := s.VelocityByID(r.velocityID)
		if err != nil {
			return spso.Swarm{}, err
		}
		bestPos, bestFitness, _, err := s.PositionByID(r.bestPositionID)
		if err != nil {
			return spso.Swarm{}, err
		}
		particles[i] = spso.Particle{
			UID:              r.uid,
			Position:         pos,
			Velocity:         vel,
			PrevBestPosition: bestPos,
			PrevBestFitness:  bestFitness,
		}
	}
	return spso.Swarm{Particles: particles}, nil
}
