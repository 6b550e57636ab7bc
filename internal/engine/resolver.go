package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/sandcalc/internal/ir"
)

// DependencyValues maps ComponentID.Key() ("<id>@<version>") to a
// dependency's precomputed result, as rendered by the sandbox. A present
// key with a nil value means the dependency exists but has not been
// computed; it is injected as undefined.
type DependencyValues map[string]*string

// Set records a computed result for id.
func (v DependencyValues) Set(id ir.ComponentID, result string) {
	v[id.Key()] = &result
}

// SetUncomputed records that id exists without a computed result.
func (v DependencyValues) SetUncomputed(id ir.ComponentID) {
	v[id.Key()] = nil
}

// DependencyIdentifier returns the sandbox identifier a dependency is bound
// to: dep_<id>_v<version>. Negative ids are written n<abs> so the result
// stays a valid identifier (-1@1 -> dep_n1_v1).
func DependencyIdentifier(id ir.ComponentID) string {
	n := id.ID
	sign := ""
	if n < 0 {
		sign = "n"
		n = -n
	}
	return fmt.Sprintf("dep_%s%d_v%d", sign, n, id.Version)
}

// BuildInjection returns the script that binds every declared dependency of
// c into the sandbox scope, one statement per dependency in declaration
// order. Returns "" when c declares no dependencies.
//
// Fails fast when a declared dependency is temporary or absent from values;
// the missing-dependency error reports the declared and resolvable counts.
func BuildInjection(c ir.Component, values DependencyValues) (string, error) {
	if len(c.DependencyIDs) == 0 {
		return "", nil
	}

	var b strings.Builder
	for i, dep := range c.DependencyIDs {
		if dep.IsTemporary() {
			return "", NewTemporaryDependencyError(c.ID.Key(), i)
		}
		result, ok := values[dep.Key()]
		if !ok {
			return "", NewMissingDependencyError(c.ID.Key(), len(c.DependencyIDs), countResolvable(c.DependencyIDs, values), dep.Key())
		}
		fmt.Fprintf(&b, "__bind(%q, __deepFreeze(%s));\n", DependencyIdentifier(dep), renderLiteral(result))
	}
	return b.String(), nil
}

func countResolvable(deps []ir.ComponentID, values DependencyValues) int {
	n := 0
	for _, dep := range deps {
		if _, ok := values[dep.Key()]; ok {
			n++
		}
	}
	return n
}

// renderLiteral turns a stored result into the expression injected for it.
// Results are the expression text the sandbox renders (strings quoted,
// functions as source), so they are injected verbatim inside parentheses.
// A missing or blank result is undefined.
func renderLiteral(result *string) string {
	if result == nil || strings.TrimSpace(*result) == "" {
		return "undefined"
	}
	return "(" + *result + ")"
}

// ComponentStore looks up saved components by id and version.
// Implemented by store.Store.
type ComponentStore interface {
	Get(ctx context.Context, id ir.ComponentID) (ir.Component, bool, error)
}

// CollectDependencyValues fetches every declared dependency of c from s and
// returns the values map BuildInjection expects. Dependencies that are not
// found are left out, so BuildInjection reports them as missing.
// Lookups run concurrently.
func CollectDependencyValues(ctx context.Context, s ComponentStore, c ir.Component) (DependencyValues, error) {
	values := make(DependencyValues, len(c.DependencyIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, dep := range c.DependencyIDs {
		if dep.IsTemporary() {
			continue
		}
		g.Go(func() error {
			found, ok, err := s.Get(gctx, dep)
			if err != nil {
				return fmt.Errorf("fetch dependency %s: %w", dep, err)
			}
			if !ok {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if found.ComputedResult == nil {
				values.SetUncomputed(dep)
			} else {
				values.Set(dep, *found.ComputedResult)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}
