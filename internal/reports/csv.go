package reports

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/odyssey-erp/schoolbooks/internal/billing"
)

var csvHeader = []string{"Level", "Supplier", "Class", "Key", "Label", "Ordered", "Received", "Short", "Gross", "Discount", "Net"}

// WriteCSV flattens the supplier tree into one row per node, parents first.
func WriteCSV(w io.Writer, report billing.Report) error {
	writer := csv.NewWriter(w)
	writer.UseCRLF = true

	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	var supplier, class string
	var writeErr error
	report.Walk(func(n *billing.Node, depth int) {
		if writeErr != nil {
			return
		}
		switch n.Level {
		case billing.LevelSupplier:
			supplier, class = n.Label, ""
		case billing.LevelClass:
			class = n.Label
		}
		c := n.Counters
		writeErr = writer.Write([]string{
			n.Level,
			supplier,
			class,
			n.Key,
			n.Label,
			strconv.Itoa(c.OrderedQty),
			strconv.Itoa(c.ReceivedQty),
			strconv.Itoa(c.ShortQty),
			billing.FormatAmount(c.GrossAmount),
			billing.FormatAmount(c.DiscountAmount),
			billing.FormatAmount(c.NetAmount),
		})
	})
	if writeErr != nil {
		return writeErr
	}
	writer.Flush()
	return writer.Error()
}
