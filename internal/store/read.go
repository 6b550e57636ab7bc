package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sandcalc/internal/ir"
)

// Get returns the component stored under id.
// Returns (zero, false, nil) if it does not exist; temporary ids are never found.
func (s *Store) Get(ctx context.Context, id ir.ComponentID) (ir.Component, bool, error) {
	if id.IsTemporary() {
		return ir.Component{}, false, nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, version, name, kind, source, arguments, scenarios, computed_result
		FROM components
		WHERE id = ? AND version = ?
	`, id.ID, id.Version)

	c, err := scanComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Component{}, false, nil
	}
	if err != nil {
		return ir.Component{}, false, fmt.Errorf("get component %s: %w", id, err)
	}

	deps, err := s.readDependencies(ctx, id)
	if err != nil {
		return ir.Component{}, false, err
	}
	c.DependencyIDs = deps

	return c, true, nil
}

// Latest returns the highest stored version of a component id.
func (s *Store) Latest(ctx context.Context, id int64) (ir.Component, bool, error) {
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM components WHERE id = ? ORDER BY version DESC LIMIT 1`, id,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Component{}, false, nil
	}
	if err != nil {
		return ir.Component{}, false, fmt.Errorf("latest component %d: %w", id, err)
	}
	return s.Get(ctx, ir.NewComponentID(id, version))
}

// List returns every stored component version.
// Results are ordered deterministically: ORDER BY id ASC, version ASC.
//
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) List(ctx context.Context) ([]ir.Component, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, name, kind, source, arguments, scenarios, computed_result
		FROM components
		ORDER BY id ASC, version ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query components: %w", err)
	}
	defer rows.Close()

	components := []ir.Component{}
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate components: %w", err)
	}

	edges, err := s.readAllDependencies(ctx)
	if err != nil {
		return nil, err
	}
	for i := range components {
		components[i].DependencyIDs = edges[components[i].ID.Key()]
	}

	return components, nil
}

// Dependents returns the stored versions that depend on id, ordered by id
// and version.
func (s *Store) Dependents(ctx context.Context, id ir.ComponentID) ([]ir.ComponentID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT id, version
		FROM component_dependencies
		WHERE dep_id = ? AND dep_version = ?
		ORDER BY id ASC, version ASC
	`, id.ID, id.Version)
	if err != nil {
		return nil, fmt.Errorf("query dependents of %s: %w", id, err)
	}
	defer rows.Close()

	ids := []ir.ComponentID{}
	for rows.Next() {
		var dep ir.ComponentID
		if err := rows.Scan(&dep.ID, &dep.Version); err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		ids = append(ids, dep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependents: %w", err)
	}
	return ids, nil
}

func (s *Store) readDependencies(ctx context.Context, id ir.ComponentID) ([]ir.ComponentID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dep_id, dep_version
		FROM component_dependencies
		WHERE id = ? AND version = ?
		ORDER BY position ASC
	`, id.ID, id.Version)
	if err != nil {
		return nil, fmt.Errorf("query dependencies of %s: %w", id, err)
	}
	defer rows.Close()

	var deps []ir.ComponentID
	for rows.Next() {
		var dep ir.ComponentID
		if err := rows.Scan(&dep.ID, &dep.Version); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, dep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependencies: %w", err)
	}
	return deps, nil
}

// readAllDependencies returns every edge grouped by dependent key.
func (s *Store) readAllDependencies(ctx context.Context) (map[string][]ir.ComponentID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, dep_id, dep_version
		FROM component_dependencies
		ORDER BY id ASC, version ASC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	defer rows.Close()

	edges := make(map[string][]ir.ComponentID)
	for rows.Next() {
		var from, to ir.ComponentID
		if err := rows.Scan(&from.ID, &from.Version, &to.ID, &to.Version); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		edges[from.Key()] = append(edges[from.Key()], to)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependencies: %w", err)
	}
	return edges, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanComponent.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanComponent(row rowScanner) (ir.Component, error) {
	var (
		c             ir.Component
		kind          string
		argsJSON      string
		scenariosJSON string
		computed      sql.NullString
	)
	if err := row.Scan(&c.ID.ID, &c.ID.Version, &c.Name, &kind, &c.Source, &argsJSON, &scenariosJSON, &computed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Component{}, err
		}
		return ir.Component{}, fmt.Errorf("scan component: %w", err)
	}
	c.Kind = ir.ComponentKind(kind)

	args, err := unmarshalArguments(argsJSON)
	if err != nil {
		return ir.Component{}, err
	}
	c.Arguments = args

	scenarios, err := unmarshalScenarios(scenariosJSON)
	if err != nil {
		return ir.Component{}, err
	}
	c.Scenarios = scenarios

	if computed.Valid {
		result := computed.String
		c.ComputedResult = &result
	}
	return c, nil
}
