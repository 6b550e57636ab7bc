package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sandcalc/internal/ir"
)

// Put stores one component version together with its dependency edges.
//
// Putting an identical version again is a no-op; the stored computed result
// is kept. A version with a different fingerprint fails with
// ErrVersionImmutable. Every dependency must already be stored.
func (s *Store) Put(ctx context.Context, c ir.Component) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put component: begin: %w", err)
	}
	defer tx.Rollback()

	if err := putTx(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put component %s: commit: %w", c.ID, err)
	}
	return nil
}

// PutAll stores components in dependency order inside one transaction.
// Components may be given in any order as long as every dependency is
// either in the batch or already stored. Nothing is stored on failure.
func (s *Store) PutAll(ctx context.Context, components []ir.Component) error {
	ordered, err := DependencyOrder(components)
	if err != nil {
		return fmt.Errorf("put components: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put components: begin: %w", err)
	}
	defer tx.Rollback()

	for _, c := range ordered {
		if err := putTx(ctx, tx, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put components: commit: %w", err)
	}
	return nil
}

func putTx(ctx context.Context, tx *sql.Tx, c ir.Component) error {
	if c.ID.IsTemporary() {
		return fmt.Errorf("put component: %w", ErrTemporaryID)
	}
	if c.ID.Version < 1 {
		return fmt.Errorf("put component %s: version must be >= 1", c.ID)
	}
	if c.Kind == "" {
		c.Kind = ir.KindValue
	}

	fingerprint, err := ir.ComponentFingerprint(c)
	if err != nil {
		return fmt.Errorf("put component %s: %w", c.ID, err)
	}

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT fingerprint FROM components WHERE id = ? AND version = ?`,
		c.ID.ID, c.ID.Version,
	).Scan(&existing)
	switch {
	case err == nil:
		if existing != fingerprint {
			return fmt.Errorf("put component %s: %w", c.ID, ErrVersionImmutable)
		}
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("put component %s: lookup: %w", c.ID, err)
	}

	for _, dep := range c.DependencyIDs {
		if dep.IsTemporary() {
			return fmt.Errorf("put component %s: dependency: %w", c.ID, ErrTemporaryID)
		}
		ok, err := existsTx(ctx, tx, dep)
		if err != nil {
			return fmt.Errorf("put component %s: %w", c.ID, err)
		}
		if !ok {
			return fmt.Errorf("put component %s: %s: %w", c.ID, dep, ErrUnknownDependency)
		}
	}

	argsJSON, err := marshalArguments(c.Arguments)
	if err != nil {
		return fmt.Errorf("put component %s: %w", c.ID, err)
	}
	scenariosJSON, err := marshalScenarios(c.Scenarios)
	if err != nil {
		return fmt.Errorf("put component %s: %w", c.ID, err)
	}

	var computed sql.NullString
	if c.ComputedResult != nil {
		computed = sql.NullString{String: *c.ComputedResult, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO components
		(id, version, name, kind, source, arguments, scenarios, computed_result, fingerprint, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO NOTHING
	`,
		c.ID.ID,
		c.ID.Version,
		c.Name,
		string(c.Kind),
		c.Source,
		argsJSON,
		scenariosJSON,
		computed,
		fingerprint,
		ir.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("put component %s: %w", c.ID, err)
	}

	for i, dep := range c.DependencyIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO component_dependencies (id, version, position, dep_id, dep_version)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, c.ID.ID, c.ID.Version, i, dep.ID, dep.Version)
		if err != nil {
			return fmt.Errorf("put component %s: dependency %d: %w", c.ID, i, err)
		}
	}

	return nil
}

func existsTx(ctx context.Context, tx *sql.Tx, id ir.ComponentID) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM components WHERE id = ? AND version = ?`,
		id.ID, id.Version,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", id, err)
	}
	return true, nil
}

// DependencyOrder returns components sorted so that every component comes
// after the batch members it depends on. Ties keep input order.
// Dependencies outside the batch are ignored. Fails on a cycle.
func DependencyOrder(components []ir.Component) ([]ir.Component, error) {
	index := make(map[string]int, len(components))
	for i, c := range components {
		index[c.ID.Key()] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(components))
	ordered := make([]ir.Component, 0, len(components))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle at %s", components[i].ID)
		}
		state[i] = visiting
		for _, dep := range components[i].DependencyIDs {
			if j, ok := index[dep.Key()]; ok {
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		state[i] = done
		ordered = append(ordered, components[i])
		return nil
	}

	for i := range components {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
