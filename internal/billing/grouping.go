package billing

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// GroupMode selects how lines are split into invoices.
type GroupMode string

const (
	GroupNone        GroupMode = "NONE"
	GroupByClass     GroupMode = "CLASS"
	GroupByPublisher GroupMode = "PUBLISHER"
)

// AllGroupKey is the key of the single group produced by GroupNone.
const AllGroupKey = "ALL"

// ParseGroupMode reads a mode case-insensitively; unknown values mean GroupNone.
func ParseGroupMode(s string) GroupMode {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CLASS", "CLASS_WISE", "CLASSWISE":
		return GroupByClass
	case "PUBLISHER", "PUBLISHER_WISE", "PUBLISHERWISE":
		return GroupByPublisher
	default:
		return GroupNone
	}
}

// PricedLine is a line item after override resolution and pricing.
type PricedLine struct {
	LineItem
	Qty         int          `json:"qty"`
	Price       LinePrice    `json:"price"`
	Fulfillment *Fulfillment `json:"fulfillment,omitempty"`
}

// Group is one candidate invoice.
type Group struct {
	Key    string       `json:"key"`
	Lines  []PricedLine `json:"lines"`
	Totals GroupTotals  `json:"totals"`
}

// GroupLines partitions lines by mode. Every input line lands in exactly one group.
func GroupLines(lines []PricedLine, mode GroupMode) []Group {
	index := make(map[string]int)
	groups := make([]Group, 0)
	for _, line := range lines {
		key := line.GroupKey(mode)
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, Group{Key: key})
		}
		groups[pos].Lines = append(groups[pos].Lines, line)
	}

	for i := range groups {
		sortLines(groups[i].Lines)
	}
	SortKeys(groups, func(g Group) string { return g.Key })
	return groups
}

func sortLines(lines []PricedLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		ti, tj := strings.ToLower(lines[i].Title), strings.ToLower(lines[j].Title)
		if ti != tj {
			return ti < tj
		}
		return lines[i].LineID < lines[j].LineID
	})
}

// SortKeys orders items by key, case-insensitively with digit runs compared by value so
// that "Class 2" precedes "Class 10".
func SortKeys[T any](items []T, key func(T) string) {
	// Collators keep scratch buffers, so each call gets its own.
	col := collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := key(items[i]), key(items[j])
		if c := col.CompareString(a, b); c != 0 {
			return c < 0
		}
		return a < b
	})
}
