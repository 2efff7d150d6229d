package store

import (
	"database/sql"
	"fmt"
)

const (
	singletonPRNGSeed          = "PRNG_SEED"
	singletonConverged         = "CONVERGED"
	singletonBestPos           = "BEST_POS"
	singletonNoMovementCounter = "NO_MOVEMENT_COUNTER"
	singletonPrevPrevBest      = "PREV_PREV_BEST"
	singletonPrevBest          = "PREV_BEST"
	singletonCurrBest          = "CURR_BEST"
)

func (s *Store) getInt(what string) (int64, error) {
	var v int64
	row := s.db.QueryRow(`SELECT value FROM singleton WHERE what = ?`, what)
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("store: get singleton %s: %w", what, err)
	}
	return v, nil
}

func (s *Store) setInt(what string, v int64) error {
	_, err := s.exec(
		`INSERT INTO singleton (what, value) VALUES (?, ?)
		 ON CONFLICT(what) DO UPDATE SET value = excluded.value`,
		what, v,
	)
	return err
}

func (s *Store) getReal(what string) (float64, error) {
	var v float64
	row := s.db.QueryRow(`SELECT value FROM real_singleton WHERE what = ?`, what)
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return UnknownReal, nil
		}
		return 0, fmt.Errorf("store: get real singleton %s: %w", what, err)
	}
	if v <= 0 {
		return UnknownReal, nil
	}
	return v, nil
}

func (s *Store) setReal(what string, v float64) error {
	_, err := s.exec(
		`INSERT INTO real_singleton (what, value) VALUES (?, ?)
		 ON CONFLICT(what) DO UPDATE SET value = excluded.value`,
		what, v,
	)
	return err
}

// PRNGSeedWords and SetPRNGSeedWords persist the 16 original seed words,
// one singleton row per word, plus the recorded iteration count at
// checkpoint time. Per the PRNG-resume design note, only the original seed
// is meaningful for NewFromPrevious; the iteration count is retained for
// diagnostics/logging only and is never used to fast-forward a fresh
// generator.
func (s *Store) PRNGSeedWords() (seed [16]uint32, err error) {
	for i := 0; i < 16; i++ {
		v, err := s.getInt(fmt.Sprintf("%s_%d", singletonPRNGSeed, i))
		if err != nil {
			return seed, err
		}
		seed[i] = uint32(v)
	}
	return seed, nil
}

func (s *Store) SetPRNGSeedWords(seed [16]uint32) error {
	for i, w := range seed {
		if err := s.setInt(fmt.Sprintf("%s_%d", singletonPRNGSeed, i), int64(w)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) PRNGIteration() (uint64, error) {
	v, err := s.getInt(singletonPRNGSeed + "_iteration")
	return uint64(v), err
}

func (s *Store) SetPRNGIteration(iter uint64) error {
	return s.setInt(singletonPRNGSeed+"_iteration", int64(iter))
}

func (s *Store) Converged() (bool, error) {
	v, err := s.getInt(singletonConverged)
	return v != 0, err
}
func (s *Store) SetConverged(v bool) error {
	i := int64(0)
	if v {
		i = 1
	}
	return s.setInt(singletonConverged, i)
}

func (s *Store) BestPos() (int64, error)      { return s.getInt(singletonBestPos) }
func (s *Store) SetBestPos(id int64) error    { return s.setInt(singletonBestPos, id) }

func (s *Store) NoMovementCounter() (int, error) {
	v, err := s.getInt(singletonNoMovementCounter)
	return int(v), err
}
func (s *Store) SetNoMovementCounter(n int) error {
	return s.setInt(singletonNoMovementCounter, int64(n))
}

func (s *Store) PrevPrevBest() (float64, error)     { return s.getReal(singletonPrevPrevBest) }
func (s *Store) SetPrevPrevBest(v float64) error    { return s.setReal(singletonPrevPrevBest, v) }
func (s *Store) PrevBest() (float64, error)         { return s.getReal(singletonPrevBest) }
func (s *Store) SetPrevBest(v float64) error        { return s.setReal(singletonPrevBest, v) }
func (s *Store) CurrBest() (float64, error)         { return s.getReal(singletonCurrBest) }
func (s *Store) SetCurrBest(v float64) error        { return s.setReal(singletonCurrBest, v) }
