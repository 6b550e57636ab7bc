package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sandcalc/internal/compiler"
	"github.com/roach88/sandcalc/internal/store"
)

// memoryDB is the SQLite path of a throwaway store.
const memoryDB = ":memory:"

// openComponents opens the component store at db. When defs is set, the
// definitions in that directory are compiled, validated and imported first;
// without db they go into an in-memory store.
func openComponents(ctx context.Context, defs, db string) (*store.Store, error) {
	if defs == "" && db == "" {
		return nil, NewExitError(ExitCommandError, "one of --defs or --db is required")
	}
	if db == "" {
		db = memoryDB
	}

	s, err := store.Open(db)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	if defs == "" {
		return s, nil
	}

	if _, err := importDefinitions(ctx, s, defs); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// importDefinitions loads defs, validates the batch and writes it to s.
// Returns the number of components imported.
func importDefinitions(ctx context.Context, s *store.Store, defs string) (int, error) {
	loaded, loadErrs := LoadComponents(defs, LoadModeFailFast)
	if len(loadErrs) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrs[0], &loadErr) && loaded == nil {
			return 0, WrapExitError(ExitCommandError, loadErr.Code, loadErr)
		}
		return 0, WrapExitError(ExitFailure, "load definitions", loadErrs[0])
	}

	if verrs := compiler.Validate(loaded.Components); len(verrs) > 0 {
		return 0, WrapExitError(ExitFailure, fmt.Sprintf("definitions invalid (%d error(s))", len(verrs)), verrs[0])
	}

	if err := s.PutAll(ctx, loaded.Components); err != nil {
		return 0, WrapExitError(ExitFailure, "import definitions", err)
	}
	return len(loaded.Components), nil
}
