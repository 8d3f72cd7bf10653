// Package routetable maps URL paths to view bindings.
//
// A Table is an ordered list of entries built once and never modified.
// Patterns are made of literal segments and ":name" captures, each matching
// exactly one non-empty path segment. Resolution walks entries in declared
// order and the first match wins.
package routetable

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var paramName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Entry pairs a path pattern with a view binding.
type Entry[V any] struct {
	Pattern string
	Binding Binding[V]
}

// Route is a shorthand Entry constructor.
func Route[V any](pattern string, b Binding[V]) Entry[V] {
	return Entry[V]{Pattern: pattern, Binding: b}
}

type route[V any] struct {
	pattern   string
	shape     string
	re        *regexp.Regexp
	paramKeys []string
	handle    *Deferred[V]
}

// Match is the outcome of a successful Resolve.
type Match[V any] struct {
	Pattern string
	Params  map[string]string
	Handle  *Deferred[V]
}

// Load forces the matched handle.
func (m Match[V]) Load(ctx context.Context) (V, error) {
	return m.Handle.Load(ctx)
}

// Table is an immutable, ordered route table. Safe for concurrent use.
type Table[V any] struct {
	routes []route[V]
}

// New compiles entries in order. It rejects malformed patterns and patterns
// that match the same paths as an earlier one, such as "/customer/:id" and
// "/customer/:key".
func New[V any](entries ...Entry[V]) (*Table[V], error) {
	t := &Table[V]{routes: make([]route[V], 0, len(entries))}
	seen := make(map[string]string, len(entries))
	for _, e := range entries {
		r, err := compile[V](e.Pattern)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[r.shape]; ok {
			return nil, fmt.Errorf("%w: %s shadowed by %s", ErrDuplicatePattern, r.pattern, prev)
		}
		seen[r.shape] = r.pattern
		r.handle = e.Binding.handle()
		t.routes = append(t.routes, r)
	}
	return t, nil
}

// MustNew is New for table literals known to be valid.
func MustNew[V any](entries ...Entry[V]) *Table[V] {
	t, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve returns the first entry matching path.
func (t *Table[V]) Resolve(path string) (Match[V], bool) {
	p := normalize(path)
	for _, r := range t.routes {
		m := r.re.FindStringSubmatch(p)
		if m == nil {
			continue
		}
		params := make(map[string]string, len(r.paramKeys))
		for i, key := range r.paramKeys {
			params[key] = m[i+1]
		}
		return Match[V]{Pattern: r.pattern, Params: params, Handle: r.handle}, true
	}
	return Match[V]{}, false
}

// Patterns lists the normalized patterns in declared order.
func (t *Table[V]) Patterns() []string {
	out := make([]string, len(t.routes))
	for i, r := range t.routes {
		out[i] = r.pattern
	}
	return out
}

// Len is the number of entries.
func (t *Table[V]) Len() int { return len(t.routes) }

func compile[V any](pattern string) (route[V], error) {
	if strings.TrimSpace(pattern) == "" {
		return route[V]{}, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	p := normalize(pattern)
	if p == "/" {
		return route[V]{pattern: p, shape: p, re: regexp.MustCompile(`^/$`)}, nil
	}

	// shape is the pattern with every capture name erased.
	var (
		expr  strings.Builder
		shape strings.Builder
		keys  []string
	)
	expr.WriteString("^")
	for _, seg := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		expr.WriteString("/")
		shape.WriteString("/")
		switch {
		case seg == "":
			return route[V]{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidPattern, pattern)
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			if !paramName.MatchString(name) {
				return route[V]{}, fmt.Errorf("%w: bad parameter %q in %q", ErrInvalidPattern, seg, pattern)
			}
			for _, k := range keys {
				if k == name {
					return route[V]{}, fmt.Errorf("%w: parameter %q repeated in %q", ErrInvalidPattern, name, pattern)
				}
			}
			keys = append(keys, name)
			expr.WriteString("([^/]+)")
			shape.WriteString(":")
		default:
			expr.WriteString(regexp.QuoteMeta(seg))
			shape.WriteString(seg)
		}
	}
	expr.WriteString("$")

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return route[V]{}, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	return route[V]{pattern: p, shape: shape.String(), re: re, paramKeys: keys}, nil
}

// normalize adds a leading slash and drops a trailing one, except for root.
func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}
