package variables

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// pattern matches {{ NAME }}, {{ SELF.x }}, {{ DATABASE.a.b }} and
// dotted/space-separated nested paths, case-insensitively.
var pattern = regexp.MustCompile(`(?i)\{\{\s*(\w+(?:[.\s]\w+)*)\s*\}\}`)

// ExpandText substitutes every {{ ... }} marker in text with its
// resolved value (stringified), looking up all matches concurrently.
// A miss leaves the original marker text in place. Expansion is
// idempotent once no markers remain.
func ExpandText(ctx context.Context, text string, v *Variables) (string, error) {
	matches := pattern.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text, nil
	}

	values := make([]any, len(matches))
	keys := make([]string, len(matches))
	for i, m := range matches {
		keys[i] = text[m[2]:m[3]]
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			value, err := v.Get(gctx, normalizeKey(key))
			if err != nil {
				return err
			}
			values[i] = value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var b strings.Builder
	last := 0
	for i, m := range matches {
		start, end := m[0], m[1]
		b.WriteString(text[last:start])
		if values[i] == nil {
			b.WriteString(text[start:end])
		} else {
			b.WriteString(fmt.Sprint(values[i]))
		}
		last = end
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// normalizeKey collapses the pattern's permitted internal whitespace
// ("SELF foo") to the canonical dotted form ("SELF.foo").
func normalizeKey(key string) string {
	fields := regexp.MustCompile(`[.\s]+`).Split(key, -1)
	return strings.Join(fields, ".")
}

// ExpandDeserialized expands text and converts the fully-expanded
// result to bool/int/float when it parses as one, else returns the
// string.
func ExpandDeserialized(ctx context.Context, text string, v *Variables) (any, error) {
	expanded, err := ExpandText(ctx, text, v)
	if err != nil {
		return nil, err
	}
	return Deserialize(expanded), nil
}

// Deserialize converts text to the first of bool/int/float that
// parses, else returns the string unchanged.
func Deserialize(text string) any {
	switch strings.ToLower(text) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	return text
}

// ExpandData recurses through JSON-shaped data: strings are expanded
// (optionally deserialized), slices/maps recurse element- and
// value-wise, map keys are expanded as plain text, and any other
// value passes through unchanged.
func ExpandData(ctx context.Context, data any, v *Variables, deserialize bool) (any, error) {
	switch typed := data.(type) {
	case string:
		if deserialize {
			return ExpandDeserialized(ctx, typed, v)
		}
		return ExpandText(ctx, typed, v)
	case []any:
		out := make([]any, len(typed))
		g, gctx := errgroup.WithContext(ctx)
		for i, item := range typed {
			i, item := i, item
			g.Go(func() error {
				expanded, err := ExpandData(gctx, item, v, deserialize)
				if err != nil {
					return err
				}
				out[i] = expanded
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(typed))
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for key, val := range typed {
			key, val := key, val
			g.Go(func() error {
				expandedKey, err := ExpandText(gctx, key, v)
				if err != nil {
					return err
				}
				expandedVal, err := ExpandData(gctx, val, v, deserialize)
				if err != nil {
					return err
				}
				mu.Lock()
				out[expandedKey] = expandedVal
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return data, nil
	}
}
