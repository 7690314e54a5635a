// Package catalog lists the MRT archives a run should process.
package catalog

import (
	"context"
	"time"
)

// Kind is the archive's data type.
type Kind string

const (
	KindUpdate  Kind = "update"
	KindRIB     Kind = "rib"
	KindUnknown Kind = "unknown"
)

// ParseKind maps a broker data_type or a configured name to a Kind.
func ParseKind(s string) Kind {
	switch s {
	case "update", "updates":
		return KindUpdate
	case "rib", "ribs", "bview":
		return KindRIB
	default:
		return KindUnknown
	}
}

// Item describes one remote archive. RoughSize is in bytes and is negative
// when unknown.
type Item struct {
	URL       string
	RoughSize int64
	Kind      Kind
	Collector string
	Start     time.Time
}

// Catalog produces the items for one run. An error means no usable list.
type Catalog interface {
	Query(ctx context.Context) ([]Item, error)
}

// Partition groups items by kind, preserving their relative order.
func Partition(items []Item) map[Kind][]Item {
	out := make(map[Kind][]Item)
	for _, it := range items {
		out[it.Kind] = append(out[it.Kind], it)
	}
	return out
}
