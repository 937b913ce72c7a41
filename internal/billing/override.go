package billing

import (
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

const (
	itemKeyPrefix    = "item:"
	productKeyPrefix = "product:"
)

// ItemKey is the override key addressing a single line.
func ItemKey(lineID string) string { return itemKeyPrefix + lineID }

// ProductKey is the override key addressing every line of a product.
func ProductKey(productID string) string { return productKeyPrefix + productID }

// OverrideSet carries the caller's price and quantity overrides for one computation pass.
// Resolution only reads from the maps.
type OverrideSet struct {
	Price              map[string]decimal.Decimal
	Qty                map[string]int
	GlobalDefaultPrice *decimal.Decimal
	// AllowZeroPrice makes a present price override of 0 win instead of falling through.
	AllowZeroPrice bool
}

// ParseOverrides builds an OverrideSet from the flat string-keyed maps used at the
// boundary. Values are coerced with ToNumber/ClampQty; nil values are dropped.
func ParseOverrides(price map[string]any, qty map[string]any, globalDefault any) OverrideSet {
	set := OverrideSet{}
	if len(price) > 0 {
		set.Price = make(map[string]decimal.Decimal, len(price))
		for k, v := range price {
			if v == nil {
				continue
			}
			set.Price[strings.TrimSpace(k)] = ToNumber(v)
		}
	}
	if len(qty) > 0 {
		set.Qty = make(map[string]int, len(qty))
		for k, v := range qty {
			if v == nil {
				continue
			}
			set.Qty[strings.TrimSpace(k)] = ClampQty(v)
		}
	}
	if globalDefault != nil {
		if g := ToNumber(globalDefault); g.IsPositive() {
			set.GlobalDefaultPrice = &g
		}
	}
	return set
}

// ResolveQty returns the effective quantity: line override, then product override, then
// the requested quantity. A quantity override of 0 is honoured.
func ResolveQty(lineID, productID string, requestedQty int, set OverrideSet) int {
	if q, ok := set.Qty[ItemKey(lineID)]; ok && lineID != "" {
		return ClampInt(q, 0, NoUpperBound)
	}
	if q, ok := set.Qty[ProductKey(productID)]; ok && productID != "" {
		return ClampInt(q, 0, NoUpperBound)
	}
	return ClampInt(requestedQty, 0, NoUpperBound)
}

// ResolvePrice returns the effective unit price: line override, product override, the
// global default (when positive), then defaultUnitPrice.
func ResolvePrice(lineID, productID string, defaultUnitPrice decimal.Decimal, set OverrideSet) decimal.Decimal {
	if p, ok := set.priceFor(ItemKey(lineID), lineID != ""); ok {
		return p
	}
	if p, ok := set.priceFor(ProductKey(productID), productID != ""); ok {
		return p
	}
	if set.GlobalDefaultPrice != nil && set.GlobalDefaultPrice.IsPositive() {
		return *set.GlobalDefaultPrice
	}
	return NonNegative(defaultUnitPrice)
}

func (s OverrideSet) priceFor(key string, enabled bool) (decimal.Decimal, bool) {
	if !enabled {
		return decimal.Zero, false
	}
	p, ok := s.Price[key]
	if !ok || p.IsNegative() {
		return decimal.Zero, false
	}
	if p.IsZero() && !s.AllowZeroPrice {
		return decimal.Zero, false
	}
	return p, true
}

// Flat returns the boundary representation: string keys mapped to canonical strings.
func (s OverrideSet) Flat() (price map[string]string, qty map[string]string) {
	price = make(map[string]string, len(s.Price))
	for k, v := range s.Price {
		price[k] = v.String()
	}
	qty = make(map[string]string, len(s.Qty))
	for k, v := range s.Qty {
		qty[k] = strconv.Itoa(v)
	}
	return price, qty
}

// Fingerprint is a stable digest of the set, independent of map iteration order.
func (s OverrideSet) Fingerprint() string {
	price, qty := s.Flat()
	var b strings.Builder
	writeSorted(&b, "p", price)
	writeSorted(&b, "q", qty)
	if s.GlobalDefaultPrice != nil {
		b.WriteString("g=" + s.GlobalDefaultPrice.String() + ";")
	}
	if s.AllowZeroPrice {
		b.WriteString("z;")
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

func writeSorted(b *strings.Builder, tag string, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(tag + "|" + k + "=" + m[k] + ";")
	}
}
