package netprofile

import (
	"strings"
	"time"
)

// Kind is a connection class.
type Kind string

const (
	KindSlow2G  Kind = "slow-2g"
	Kind2G      Kind = "2g"
	Kind3G      Kind = "3g"
	Kind4G      Kind = "4g"
	KindWiFi    Kind = "wifi"
	KindUnknown Kind = "unknown"
)

// Kinds lists every known kind, slowest first.
var Kinds = []Kind{KindSlow2G, Kind2G, Kind3G, Kind4G, KindWiFi, KindUnknown}

// ParseKind maps a platform value onto a Kind. Unrecognized values become
// KindUnknown.
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k
		}
	}
	return KindUnknown
}

// Entry is the request budget for one kind.
type Entry struct {
	Timeout    time.Duration
	RetryCount int
}

// Table maps kinds to budgets.
type Table map[Kind]Entry

var unknownEntry = Entry{Timeout: 5 * time.Second, RetryCount: 1}

// DefaultTable returns the built-in budgets.
func DefaultTable() Table {
	return Table{
		KindSlow2G:  {Timeout: 15 * time.Second, RetryCount: 3},
		Kind2G:      {Timeout: 10 * time.Second, RetryCount: 3},
		Kind3G:      {Timeout: 8 * time.Second, RetryCount: 2},
		Kind4G:      {Timeout: 5 * time.Second, RetryCount: 1},
		KindWiFi:    {Timeout: 5 * time.Second, RetryCount: 1},
		KindUnknown: unknownEntry,
	}
}

// TableFromConfig overlays configured timeouts and retry counts, keyed by kind
// name, on the defaults. Unrecognized names are ignored.
func TableFromConfig(timeouts map[string]time.Duration, retries map[string]int) Table {
	t := DefaultTable()
	for name, d := range timeouts {
		k := Kind(strings.ToLower(name))
		if e, ok := t[k]; ok && d > 0 {
			e.Timeout = d
			t[k] = e
		}
	}
	for name, n := range retries {
		k := Kind(strings.ToLower(name))
		if e, ok := t[k]; ok && n >= 0 {
			e.RetryCount = n
			t[k] = e
		}
	}
	return t
}

// Lookup returns the entry for k, falling back to the unknown entry.
func (t Table) Lookup(k Kind) Entry {
	if e, ok := t[k]; ok {
		return e
	}
	if e, ok := t[KindUnknown]; ok {
		return e
	}
	return unknownEntry
}

func (t Table) Timeout(k Kind) time.Duration { return t.Lookup(k).Timeout }

func (t Table) RetryCount(k Kind) int { return t.Lookup(k).RetryCount }
