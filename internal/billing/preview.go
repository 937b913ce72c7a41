package billing

import "fmt"

// Severity classifies an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes reported by Preview.
const (
	IssueNoBillableLines = "NO_BILLABLE_LINES"
	IssueDiscountClamped = "DISCOUNT_CLAMPED"
	IssueStockShort      = "STOCK_SHORT"
)

// Issue is a business condition found while computing a preview. Errors block a commit;
// warnings are informational.
type Issue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	GroupKey string   `json:"group_key,omitempty"`
	LineID   string   `json:"line_id,omitempty"`
	Message  string   `json:"message"`
}

// PreviewInput is everything one computation pass needs.
type PreviewInput struct {
	Lines     []LineItem
	Mode      GroupMode
	Overrides OverrideSet
	// Charges apply to every group unless GroupCharges has an entry for its key.
	Charges      Charges
	GroupCharges map[string]Charges
	Stock        StockTable
}

// PreviewResult holds the priced groups and everything the caller needs to decide on a
// commit.
type PreviewResult struct {
	Mode    GroupMode    `json:"mode"`
	Groups  []Group      `json:"groups"`
	Skipped []PricedLine `json:"skipped"`
	Grand   GrandTotals  `json:"grand"`
	Issues  []Issue      `json:"issues"`
}

// Preview resolves, prices, groups and totals the input lines. Lines whose effective
// quantity is zero are reported in Skipped instead of being billed.
func Preview(in PreviewInput) PreviewResult {
	mode := in.Mode
	if mode == "" {
		mode = GroupNone
	}

	billable := make([]PricedLine, 0, len(in.Lines))
	skipped := make([]PricedLine, 0)
	for _, line := range in.Lines {
		priced := priceItem(line, in.Overrides, in.Stock)
		if priced.Qty <= 0 {
			skipped = append(skipped, priced)
			continue
		}
		billable = append(billable, priced)
	}

	groups := GroupLines(billable, mode)
	issues := make([]Issue, 0)
	for i := range groups {
		charges := in.Charges
		if c, ok := in.GroupCharges[groups[i].Key]; ok {
			charges = c
		}
		groups[i].Totals = AggregateGroup(groups[i].Lines, charges)
		issues = append(issues, groupIssues(groups[i])...)
	}
	if len(billable) == 0 {
		issues = append(issues, Issue{
			Code:     IssueNoBillableLines,
			Severity: SeverityError,
			Message:  "no line has a positive quantity",
		})
	}

	return PreviewResult{
		Mode:    mode,
		Groups:  groups,
		Skipped: skipped,
		Grand:   SumTotals(groups),
		Issues:  issues,
	}
}

func priceItem(line LineItem, set OverrideSet, stock StockTable) PricedLine {
	qty := ResolveQty(line.LineID, line.ProductID, line.RequestedQty, set)
	price := ResolvePrice(line.LineID, line.ProductID, line.DefaultUnitPrice, set)
	priced := PricedLine{
		LineItem: line,
		Qty:      qty,
		Price:    PriceLine(qty, price, line.ItemDiscount),
	}
	if avail, ok := stock.Available(line); ok {
		f := Evaluate(qty, avail)
		priced.Fulfillment = &f
	}
	return priced
}

func groupIssues(g Group) []Issue {
	var issues []Issue
	for _, l := range g.Lines {
		if l.Fulfillment != nil && !l.Fulfillment.CanFulfill {
			issues = append(issues, Issue{
				Code:     IssueStockShort,
				Severity: SeverityWarning,
				GroupKey: g.Key,
				LineID:   l.LineID,
				Message:  fmt.Sprintf("%s is short by %d", l.Title, l.Fulfillment.ShortQty),
			})
		}
	}
	if g.Totals.DiscountClamped {
		issues = append(issues, Issue{
			Code:     IssueDiscountClamped,
			Severity: SeverityWarning,
			GroupKey: g.Key,
			Message: fmt.Sprintf("bill discount %s exceeds subtotal %s",
				FormatAmount(g.Totals.DiscountRequested), FormatAmount(g.Totals.Subtotal)),
		})
	}
	return issues
}

// Rejected reports whether any error-severity issue is present.
func (r PreviewResult) Rejected() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity issues.
func (r PreviewResult) Errors() []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			out = append(out, is)
		}
	}
	return out
}

// Group returns the group with key, if present.
func (r PreviewResult) Group(key string) (Group, bool) {
	for _, g := range r.Groups {
		if g.Key == key {
			return g, true
		}
	}
	return Group{}, false
}

// Select narrows the result to the given group keys, recomputing the grand total from the
// kept groups. An empty selection keeps every group. Selecting nothing billable yields a
// NO_BILLABLE_LINES error.
func (r PreviewResult) Select(keys []string) PreviewResult {
	if len(keys) == 0 {
		return r
	}
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}

	out := PreviewResult{Mode: r.Mode, Skipped: r.Skipped, Groups: make([]Group, 0, len(keys)), Issues: make([]Issue, 0)}
	for _, g := range r.Groups {
		if _, ok := want[g.Key]; ok {
			out.Groups = append(out.Groups, g)
		}
	}
	for _, is := range r.Issues {
		if is.GroupKey == "" {
			if is.Code != IssueNoBillableLines {
				out.Issues = append(out.Issues, is)
			}
			continue
		}
		if _, ok := want[is.GroupKey]; ok {
			out.Issues = append(out.Issues, is)
		}
	}
	if len(out.Groups) == 0 {
		out.Issues = append(out.Issues, Issue{
			Code:     IssueNoBillableLines,
			Severity: SeverityError,
			Message:  "no selected group has billable lines",
		})
	}
	out.Grand = SumTotals(out.Groups)
	return out
}
