package filter

import (
	"fmt"

	"github.com/gobwas/glob"
	"github.com/samber/lo"
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/processor"
	"github.com/web3tea/pgcdc-sentinel/wal2json"
)

// Rules selects events by kind, schema and table. Table patterns are matched
// against both the bare table name and "schema.table". Empty include lists
// match everything; excludes win over includes.
type Rules struct {
	Kinds          []string
	Schemas        []string
	Tables         []string
	ExcludeSchemas []string
	ExcludeTables  []string
}

// GlobFilter drops events that do not match its Rules.
type GlobFilter struct {
	kinds          []wal2json.Kind
	schemas        []glob.Glob
	tables         []glob.Glob
	excludeSchemas []glob.Glob
	excludeTables  []glob.Glob
}

func NewGlobFilter(rules Rules) (*GlobFilter, error) {
	f := &GlobFilter{}
	for _, k := range rules.Kinds {
		kind := wal2json.Kind(k)
		if !kind.Valid() {
			return nil, fmt.Errorf("invalid event kind %q", k)
		}
		f.kinds = append(f.kinds, kind)
	}

	var err error
	if f.schemas, err = compile("schema", rules.Schemas); err != nil {
		return nil, err
	}
	if f.tables, err = compile("table", rules.Tables); err != nil {
		return nil, err
	}
	if f.excludeSchemas, err = compile("schema", rules.ExcludeSchemas); err != nil {
		return nil, err
	}
	if f.excludeTables, err = compile("table", rules.ExcludeTables); err != nil {
		return nil, err
	}
	return f, nil
}

func compile(what string, patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", what, pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Match reports whether an event of the given kind on schema.table passes the filter.
func (f *GlobFilter) Match(kind wal2json.Kind, schema, table string) bool {
	if len(f.kinds) > 0 && !lo.Contains(f.kinds, kind) {
		return false
	}
	qualified := schema + "." + table
	if matchAny(f.excludeSchemas, schema) || matchAny(f.excludeTables, table, qualified) {
		return false
	}
	if len(f.schemas) > 0 && !matchAny(f.schemas, schema) {
		return false
	}
	if len(f.tables) > 0 && !matchAny(f.tables, table, qualified) {
		return false
	}
	return true
}

func matchAny(globs []glob.Glob, names ...string) bool {
	return lo.SomeBy(globs, func(g glob.Glob) bool {
		return lo.SomeBy(names, g.Match)
	})
}

func (f *GlobFilter) Process(event *keyvalue.Event) (*keyvalue.Event, error) {
	if !f.Match(event.Kind, event.Schema, event.Table) {
		return nil, nil
	}
	return event, nil
}

var _ processor.EventProcessor = (*GlobFilter)(nil)
