package order

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cassa/backend/internal/domain/shared/valueobject"
)

// KeyKind classifies a table reference
type KeyKind string

const (
	KindTableT    KeyKind = "TABLE_T"
	KindTableM    KeyKind = "TABLE_M"
	KindNumbered  KeyKind = "NUMBERED"
	KindTableP    KeyKind = "TABLE_P"
	KindTakeaway  KeyKind = "TAKEAWAY"
	KindCounter   KeyKind = "COUNTER"
	KindUnmatched KeyKind = "UNMATCHED"
	KindNone      KeyKind = "NONE"
)

// tier orders the kinds; everything from tier 4 on sorts after the dine-in layout
var tier = map[KeyKind]int{
	KindTableT:    0,
	KindTableM:    1,
	KindNumbered:  2,
	KindTableP:    3,
	KindTakeaway:  4,
	KindCounter:   5,
	KindUnmatched: 6,
	KindNone:      7,
}

var (
	takeawayWords = map[string]bool{"ASPORTO": true, "TAKEAWAY": true, "TAKE-AWAY": true}
	counterWords  = map[string]bool{"BANCO": true, "COUNTER": true}
)

// TableKey is a classified table reference
type TableKey struct {
	Kind   KeyKind
	Code   string
	Number int
}

// String returns the grouping code ("T3", "21", "ASPORTO"), empty for KindNone
func (k TableKey) String() string {
	return k.Code
}

// ParseTableKey classifies a raw table reference. Recognised dine-in keys are
// T1-T7, M1-M7, 11-16, 21-26, 31-36 and P1-P4; their codes are rebuilt from
// the number so "T01" and "T1" share a group.
func ParseTableKey(raw string) TableKey {
	code := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case code == "":
		return TableKey{Kind: KindNone, Number: math.MaxInt}
	case takeawayWords[code]:
		return TableKey{Kind: KindTakeaway, Code: "ASPORTO", Number: math.MaxInt}
	case counterWords[code]:
		return TableKey{Kind: KindCounter, Code: "BANCO", Number: math.MaxInt}
	}

	if n, err := strconv.Atoi(code); err == nil {
		if (n >= 11 && n <= 16) || (n >= 21 && n <= 26) || (n >= 31 && n <= 36) {
			return TableKey{Kind: KindNumbered, Code: strconv.Itoa(n), Number: n}
		}
		return TableKey{Kind: KindUnmatched, Code: code, Number: n}
	}

	if len(code) >= 2 {
		if n, err := strconv.Atoi(code[1:]); err == nil {
			switch {
			case code[0] == 'T' && n >= 1 && n <= 7:
				return TableKey{Kind: KindTableT, Code: fmt.Sprintf("T%d", n), Number: n}
			case code[0] == 'M' && n >= 1 && n <= 7:
				return TableKey{Kind: KindTableM, Code: fmt.Sprintf("M%d", n), Number: n}
			case code[0] == 'P' && n >= 1 && n <= 4:
				return TableKey{Kind: KindTableP, Code: fmt.Sprintf("P%d", n), Number: n}
			}
			return TableKey{Kind: KindUnmatched, Code: code, Number: n}
		}
	}
	return TableKey{Kind: KindUnmatched, Code: code, Number: math.MaxInt}
}

// TableGroup is a computed, read-only aggregation of orders sharing a key
type TableGroup struct {
	Key              string
	Kind             KeyKind
	Orders           []*Order
	Total            valueobject.Money
	Paid             valueobject.Money
	Remaining        valueobject.Money
	CustomerNames    []string
	EarliestOpenedAt time.Time
	Status           PaymentStatus

	number int
}

// SingletonKeyPrefix prefixes the key of an order without a table
const SingletonKeyPrefix = "order:"

// ComputeTableGroups groups orders by table key and sorts the groups.
// It does not modify its input.
func ComputeTableGroups(orders []*Order) []TableGroup {
	byKey := make(map[string]*TableGroup)
	keys := make([]string, 0)

	for _, o := range orders {
		if o == nil {
			continue
		}
		tk := o.TableKey()
		key := tk.Code
		number := tk.Number
		if tk.Kind == KindNone {
			key = SingletonKeyPrefix + o.ID.String()
			if n, err := strconv.Atoi(strings.TrimSpace(o.Number)); err == nil {
				number = n
			}
		}

		g, ok := byKey[key]
		if !ok {
			g = &TableGroup{Key: key, Kind: tk.Kind, number: number}
			byKey[key] = g
			keys = append(keys, key)
		}
		g.Orders = append(g.Orders, o)
	}

	groups := make([]TableGroup, 0, len(keys))
	for _, key := range keys {
		g := byKey[key]
		g.summarize()
		groups = append(groups, *g)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groupLess(&groups[i], &groups[j])
	})
	return groups
}

func groupLess(a, b *TableGroup) bool {
	if tier[a.Kind] != tier[b.Kind] {
		return tier[a.Kind] < tier[b.Kind]
	}
	if a.number != b.number {
		return a.number < b.number
	}
	return a.Key < b.Key
}

func (g *TableGroup) summarize() {
	sort.SliceStable(g.Orders, func(i, j int) bool {
		a, b := g.Orders[i], g.Orders[j]
		if !a.OpenedAt.Equal(b.OpenedAt) {
			return a.OpenedAt.Before(b.OpenedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	seen := make(map[string]bool)
	for i, o := range g.Orders {
		g.Total = g.Total.Add(o.Total())
		g.Paid = g.Paid.Add(o.TotalPaid())
		g.Remaining = g.Remaining.Add(o.Remaining())
		if i == 0 || o.OpenedAt.Before(g.EarliestOpenedAt) {
			g.EarliestOpenedAt = o.OpenedAt
		}
		if o.CustomerName != "" && !seen[o.CustomerName] {
			seen[o.CustomerName] = true
			g.CustomerNames = append(g.CustomerNames, o.CustomerName)
		}
	}
	g.Status = deriveStatus(g.Total, g.Remaining)
}
