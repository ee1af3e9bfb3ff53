// Package query derives the visible, ordered subset of a record collection
// from user-entered filter criteria and a single sort key. Every list view
// (leads, offers, transactions, properties, conversations) goes through Apply
// with its own accessor Table.
package query

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Direction is the sort direction of a list view.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is the single active sort key of a list view. An empty Key keeps the
// input order.
type Sort struct {
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
}

// Toggle returns the sort state after the user picks key: the same key flips
// the direction, a different key starts ascending.
func (s Sort) Toggle(key string) Sort {
	if s.Key == key {
		if s.Direction == Desc {
			return Sort{Key: key, Direction: Asc}
		}
		return Sort{Key: key, Direction: Desc}
	}
	return Sort{Key: key, Direction: Asc}
}

// Range is an inclusive numeric interval. A nil bound is unbounded.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func (r Range) contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// Filter is the set of constraints narrowing a collection. All active
// constraints are ANDed. Zero values mean "no constraint".
type Filter struct {
	Search string               `json:"search,omitempty"`
	Equals map[string]string    `json:"equals,omitempty"`
	Ranges map[string]Range     `json:"ranges,omitempty"`
	Since  map[string]time.Time `json:"since,omitempty"`
	Tags   []string             `json:"tags,omitempty"`
}

// IsNoFilter reports whether an equality value means "do not filter".
func IsNoFilter(v string) bool {
	return v == "" || v == "all"
}

type kind uint8

const (
	kindAbsent kind = iota
	kindString
	kindNumber
	kindTime
)

// Value is a field value extracted from a record.
type Value struct {
	kind kind
	str  string
	num  float64
	t    time.Time
}

func String(s string) Value  { return Value{kind: kindString, str: s} }
func Number(f float64) Value { return Value{kind: kindNumber, num: f} }
func Int(i int) Value        { return Value{kind: kindNumber, num: float64(i)} }
func Time(t time.Time) Value { return Value{kind: kindTime, t: t.UTC()} }
func Absent() Value          { return Value{} }

func (v Value) IsAbsent() bool { return v.kind == kindAbsent }

// TimePtr is Time for optional timestamps; nil is absent.
func TimePtr(t *time.Time) Value {
	if t == nil || t.IsZero() {
		return Absent()
	}
	return Time(*t)
}

// text is the form used for equality filters.
func (v Value) text() string {
	switch v.kind {
	case kindString:
		return v.str
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case kindTime:
		return v.t.Format(time.RFC3339)
	}
	return ""
}

// equals reports whether v matches an equality filter value. Numbers and
// times compare by value, so "450000.00" matches 450000; strings compare
// exactly.
func (v Value) equals(want string) bool {
	switch v.kind {
	case kindNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(want), 64)
		return err == nil && f == v.num
	case kindTime:
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(want))
		return err == nil && t.Equal(v.t)
	case kindString:
		return v.str == want
	}
	return false
}

func (v Value) number() (float64, bool) {
	switch v.kind {
	case kindNumber:
		return v.num, true
	case kindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		return f, err == nil
	case kindTime:
		return float64(v.t.UnixNano()), true
	}
	return 0, false
}

// compare orders two values ascending. Absent values sort after everything.
func compare(a, b Value) int {
	switch {
	case a.kind == kindAbsent && b.kind == kindAbsent:
		return 0
	case a.kind == kindAbsent:
		return 1
	case b.kind == kindAbsent:
		return -1
	}
	if a.kind == b.kind {
		switch a.kind {
		case kindNumber:
			return cmpFloat(a.num, b.num)
		case kindTime:
			return a.t.Compare(b.t)
		default:
			return strings.Compare(a.str, b.str)
		}
	}
	return strings.Compare(a.text(), b.text())
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Field extracts a named field from a record.
type Field[T any] func(T) Value

// Table describes how a record type is searched, filtered and sorted.
type Table[T any] struct {
	// Search lists the fields matched by the free-text filter.
	Search []func(T) string
	Fields map[string]Field[T]
	Tags   func(T) []string
}

// Apply returns the records that satisfy f, ordered by s. The input slice is
// never modified; ties keep their input order.
func Apply[T any](records []T, table Table[T], f Filter, s Sort) []T {
	out := make([]T, 0, len(records))
	// The needle is used as typed; a whitespace-only search is no constraint.
	needle := ""
	if strings.TrimSpace(f.Search) != "" {
		needle = strings.ToLower(f.Search)
	}
	for _, r := range records {
		if needle != "" && !table.matchesSearch(r, needle) {
			continue
		}
		if !table.matchesFields(r, f) {
			continue
		}
		out = append(out, r)
	}

	if s.Key == "" {
		return out
	}
	field, ok := table.Fields[s.Key]
	if !ok {
		return out
	}

	keys := make([]Value, len(out))
	for i, r := range out {
		keys[i] = field(r)
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		c := compare(keys[idx[i]], keys[idx[j]])
		if s.Direction == Desc {
			c = -c
		}
		return c < 0
	})
	sorted := make([]T, len(out))
	for i, k := range idx {
		sorted[i] = out[k]
	}
	return sorted
}

func (t Table[T]) matchesSearch(r T, needle string) bool {
	for _, get := range t.Search {
		if strings.Contains(strings.ToLower(get(r)), needle) {
			return true
		}
	}
	return false
}

func (t Table[T]) matchesFields(r T, f Filter) bool {
	for key, want := range f.Equals {
		if IsNoFilter(want) {
			continue
		}
		field, ok := t.Fields[key]
		if !ok {
			continue
		}
		if !field(r).equals(want) {
			return false
		}
	}

	for key, rng := range f.Ranges {
		if rng.Min == nil && rng.Max == nil {
			continue
		}
		field, ok := t.Fields[key]
		if !ok {
			continue
		}
		n, ok := field(r).number()
		if !ok || !rng.contains(n) {
			return false
		}
	}

	for key, since := range f.Since {
		if since.IsZero() {
			continue
		}
		field, ok := t.Fields[key]
		if !ok {
			continue
		}
		v := field(r)
		if v.kind != kindTime || v.t.Before(since.UTC()) {
			return false
		}
	}

	if len(f.Tags) > 0 && t.Tags != nil {
		if !intersects(t.Tags(r), f.Tags) {
			return false
		}
	}
	return true
}

func intersects(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
