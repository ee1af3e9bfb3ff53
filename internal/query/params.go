package query

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ParseFilter reads list-endpoint query parameters into a Filter for table.
//
//	search=smith        free text
//	status=hot          equality on a known field ("all" or empty is ignored)
//	price_min=1e5       inclusive lower bound
//	price_max=5e5       inclusive upper bound
//	score_range=50-69   both bounds at once; "90+" means no upper bound
//	created_at_since=2025-01-01
//	tags=vip,investor
//
// Malformed values are dropped rather than rejected.
func ParseFilter[T any](v url.Values, table Table[T]) Filter {
	f := Filter{
		Search: v.Get("search"),
		Equals: map[string]string{},
		Ranges: map[string]Range{},
		Since:  map[string]time.Time{},
	}
	if f.Search == "" {
		f.Search = v.Get("q")
	}

	for name := range table.Fields {
		if val := v.Get(name); !IsNoFilter(val) {
			f.Equals[name] = val
		}

		var rng Range
		if lo, ok := parseFloat(v.Get(name + "_min")); ok {
			rng.Min = &lo
		}
		if hi, ok := parseFloat(v.Get(name + "_max")); ok {
			rng.Max = &hi
		}
		if r, ok := ParseRange(v.Get(name + "_range")); ok {
			if rng.Min == nil {
				rng.Min = r.Min
			}
			if rng.Max == nil {
				rng.Max = r.Max
			}
		}
		if rng.Min != nil || rng.Max != nil {
			f.Ranges[name] = rng
		}

		if t, ok := ParseDate(v.Get(name + "_since")); ok {
			f.Since[name] = t
		}
	}

	if raw := v.Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}
	return f
}

// ParseSort reads sort=<key>&dir=<asc|desc>. Anything but "desc" is ascending.
func ParseSort(v url.Values) Sort {
	s := Sort{Key: strings.TrimSpace(v.Get("sort")), Direction: Asc}
	dir := v.Get("dir")
	if dir == "" {
		dir = v.Get("order")
	}
	if strings.EqualFold(dir, string(Desc)) {
		s.Direction = Desc
	}
	return s
}

// ParseRange parses "50-69", "90+" or "-100" style ranges.
func ParseRange(s string) (Range, bool) {
	s = strings.TrimSpace(s)
	if IsNoFilter(s) {
		return Range{}, false
	}
	if strings.HasSuffix(s, "+") {
		lo, ok := parseFloat(strings.TrimSuffix(s, "+"))
		if !ok {
			return Range{}, false
		}
		return Range{Min: &lo}, true
	}
	lo, hi, found := strings.Cut(s, "-")
	if !found {
		return Range{}, false
	}
	var r Range
	if lo != "" {
		f, ok := parseFloat(lo)
		if !ok {
			return Range{}, false
		}
		r.Min = &f
	}
	if hi != "" {
		f, ok := parseFloat(hi)
		if !ok {
			return Range{}, false
		}
		r.Max = &f
	}
	return r, r.Min != nil || r.Max != nil
}

// ParseDate accepts RFC3339 or a bare YYYY-MM-DD. Bare dates are midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
