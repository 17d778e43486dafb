// Package variables implements the per-traversal variable bag used to
// resolve {{ NAME }}, {{ SELF.x }}, {{ DATABASE.path }} and nested
// dotted-path lookups, and to expand them into message text and JSON
// request bodies.
package variables

import (
	"context"
	"strconv"
	"strings"
)

// SelfLookup resolves a designer-authored named Variable by name,
// already HTML-sanitized. ok is false when no such variable exists.
type SelfLookup func(ctx context.Context, name string) (value string, ok bool, err error)

// DatabaseLookup resolves the first DatabaseRecord whose data contains
// the given dotted path, and returns the record's raw Data map so the
// caller can walk the remaining path segments. ok is false when no
// record matches.
type DatabaseLookup func(ctx context.Context, path string) (data map[string]any, ok bool, err error)

// Variables is a per-traversal mapping of names to values. It is never
// mutated in place across branches: Fork produces an independent copy
// so that sibling Connection Walker branches cannot observe each
// other's additions.
type Variables struct {
	self     SelfLookup
	database DatabaseLookup
	store    map[string]any
}

// New builds a Variables bag holding a copy of seed; it adds no
// entries of its own. The Update Router and the Background Runner
// pass BOT_NAME/BOT_USERNAME and the USER_* / USER_MESSAGE_* entries
// as seed.
func New(self SelfLookup, database DatabaseLookup, seed map[string]any) *Variables {
	store := make(map[string]any, len(seed))
	for k, v := range seed {
		store[k] = v
	}
	return &Variables{self: self, database: database, store: store}
}

// Fork returns an independent copy of v; mutations to the copy (via
// Add) never affect v or any other fork.
func (v *Variables) Fork() *Variables {
	store := make(map[string]any, len(v.store))
	for k, val := range v.store {
		store[k] = val
	}
	return &Variables{self: v.self, database: v.database, store: store}
}

// Add records a new named value in this bag only.
func (v *Variables) Add(key string, value any) {
	v.store[key] = value
}

// Get resolves key, which may be a dotted path. SELF.<name> and
// DATABASE.<path> prefixes dispatch to the designer lookups; any other
// top-level key whose value is a container is walked with the
// remainder of the path; otherwise the top-level value (or nil) is
// returned.
func (v *Variables) Get(ctx context.Context, key string) (any, error) {
	prefix, nestedKey, hasNested := cutDot(key)

	switch prefix {
	case "SELF":
		if v.self == nil {
			return nil, nil
		}
		value, ok, err := v.self(ctx, nestedKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return value, nil
	case "DATABASE":
		if v.database == nil {
			return nil, nil
		}
		data, ok, err := v.database(ctx, nestedKey)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return resolveDataPath(data, nestedKey), nil
	}

	if hasNested {
		if top, ok := v.store[prefix]; ok {
			if isContainer(top) {
				return resolveDataPath(top, nestedKey), nil
			}
		}
	}

	if value, ok := v.store[key]; ok {
		return value, nil
	}
	return nil, nil
}

func cutDot(key string) (prefix, rest string, hasRest bool) {
	prefix, rest, found := strings.Cut(key, ".")
	return prefix, rest, found
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

// resolveDataPath walks a dot-separated path through nested
// maps/slices; numeric segments index slices. Any type mismatch or
// out-of-range index yields nil, mirroring the source's
// suppress-and-return-None behavior.
func resolveDataPath(data any, path string) any {
	cur := data
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		switch typed := cur.(type) {
		case map[string]any:
			next, ok := typed[part]
			if !ok {
				return nil
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(typed) {
				return nil
			}
			cur = typed[idx]
		default:
			return nil
		}
	}
	return cur
}
