package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rollup levels.
const (
	LevelSchool   = "school"
	LevelSupplier = "supplier"
	LevelClass    = "class"
	LevelBook     = "book"
)

// BookRow is one committed order/receipt row for a book. Discount applies per unit, as
// in PriceLine.
type BookRow struct {
	SupplierID   string
	SupplierName string
	ClassName    string
	BookID       string
	Title        string
	Rate         decimal.Decimal
	OrderedQty   int
	ReceivedQty  int
	Discount     Discount
}

// Counters are carried by every node of the rollup.
type Counters struct {
	OrderedQty     int             `json:"ordered_qty"`
	ReceivedQty    int             `json:"received_qty"`
	ShortQty       int             `json:"short_qty"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	NetAmount      decimal.Decimal `json:"net_amount"`
}

func zeroCounters() Counters {
	return Counters{GrossAmount: decimal.Zero, DiscountAmount: decimal.Zero, NetAmount: decimal.Zero}
}

func (c *Counters) add(o Counters) {
	c.OrderedQty += o.OrderedQty
	c.ReceivedQty += o.ReceivedQty
	c.ShortQty += o.ShortQty
	c.GrossAmount = c.GrossAmount.Add(o.GrossAmount)
	c.DiscountAmount = c.DiscountAmount.Add(o.DiscountAmount)
	c.NetAmount = c.NetAmount.Add(o.NetAmount)
}

// Node is one level of the report tree.
type Node struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Level    string   `json:"level"`
	Counters Counters `json:"counters"`
	Children []*Node  `json:"children,omitempty"`
}

// Report is the rollup of a set of book rows. Suppliers nest class then book nodes;
// Classes is the same data viewed across suppliers.
type Report struct {
	School    Node    `json:"school"`
	Suppliers []*Node `json:"suppliers"`
	Classes   []*Node `json:"classes"`
}

// BookCounters prices a single row through PriceLine on the received quantity.
func BookCounters(row BookRow) Counters {
	received := ClampInt(row.ReceivedQty, 0, NoUpperBound)
	price := PriceLine(received, row.Rate, row.Discount)
	return Counters{
		OrderedQty:     ClampInt(row.OrderedQty, 0, NoUpperBound),
		ReceivedQty:    received,
		ShortQty:       Evaluate(row.OrderedQty, received).ShortQty,
		GrossAmount:    price.GrossAmount,
		DiscountAmount: price.GrossAmount.Sub(price.LineAmount),
		NetAmount:      price.LineAmount,
	}
}

// Rollup aggregates rows bottom-up in one pass. Rows for the same supplier, class and book
// merge into one book node.
func Rollup(rows []BookRow) Report {
	school := Node{Key: LevelSchool, Label: "School", Level: LevelSchool, Counters: zeroCounters()}
	suppliers := make(map[string]*Node)
	supplierClasses := make(map[string]*Node)
	books := make(map[string]*Node)
	classes := make(map[string]*Node)
	classBooks := make(map[string]struct{})
	var supplierList, classList []*Node

	for _, row := range rows {
		c := BookCounters(row)
		supplierKey := FirstNonBlank(row.SupplierID, row.SupplierName, Unassigned)
		className := normalizeKey(row.ClassName)

		sup, ok := suppliers[supplierKey]
		if !ok {
			sup = &Node{Key: supplierKey, Label: FirstNonBlank(row.SupplierName, supplierKey), Level: LevelSupplier, Counters: zeroCounters()}
			suppliers[supplierKey] = sup
			supplierList = append(supplierList, sup)
		}
		scKey := supplierKey + "\x00" + className
		cls, ok := supplierClasses[scKey]
		if !ok {
			cls = &Node{Key: className, Label: className, Level: LevelClass, Counters: zeroCounters()}
			supplierClasses[scKey] = cls
			sup.Children = append(sup.Children, cls)
		}
		bookKey := FirstNonBlank(row.BookID, row.Title)
		bKey := scKey + "\x00" + bookKey
		book, ok := books[bKey]
		if !ok {
			book = &Node{Key: bookKey, Label: FirstNonBlank(row.Title, bookKey), Level: LevelBook, Counters: zeroCounters()}
			books[bKey] = book
			cls.Children = append(cls.Children, book)
		}
		xcls, ok := classes[className]
		if !ok {
			xcls = &Node{Key: className, Label: className, Level: LevelClass, Counters: zeroCounters()}
			classes[className] = xcls
			classList = append(classList, xcls)
		}
		if _, seen := classBooks[bKey]; !seen {
			classBooks[bKey] = struct{}{}
			xcls.Children = append(xcls.Children, book)
		}

		book.Counters.add(c)
		cls.Counters.add(c)
		sup.Counters.add(c)
		xcls.Counters.add(c)
		school.Counters.add(c)
	}

	SortKeys(supplierList, func(n *Node) string { return n.Label })
	for _, sup := range supplierList {
		SortKeys(sup.Children, func(n *Node) string { return n.Key })
		for _, cls := range sup.Children {
			sortBooks(cls.Children)
		}
	}
	SortKeys(classList, func(n *Node) string { return n.Key })
	for _, cls := range classList {
		sortBooks(cls.Children)
	}

	if supplierList == nil {
		supplierList = []*Node{}
	}
	if classList == nil {
		classList = []*Node{}
	}
	school.Children = supplierList
	return Report{School: school, Suppliers: supplierList, Classes: classList}
}

func sortBooks(nodes []*Node) {
	SortKeys(nodes, func(n *Node) string { return strings.TrimSpace(n.Label) + "\x00" + n.Key })
}

// Walk visits every node of the supplier tree depth first, parents before children.
func (r Report) Walk(fn func(n *Node, depth int)) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	root := r.School
	visit(&root, 0)
}
