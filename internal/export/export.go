// Package export flattens orders into one row per line item and writes the
// rows as CSV or XLSX.
package export

import (
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/upsell-cli/internal/model"
)

// Format is an output file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Orders"

// ParseFormat accepts "csv" or "xlsx" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("export: unsupported format %q", s)
	}
}

// Row is one flattened line item. Orders without line items produce a single
// row whose line item columns are empty.
type Row struct {
	OrderID           string   `csv:"Order ID"`
	OrderName         string   `csv:"Order Name"`
	CreatedAt         string   `csv:"Created At"`
	FinancialStatus   string   `csv:"Financial Status"`
	FulfillmentStatus string   `csv:"Fulfillment Status"`
	TotalPrice        float64  `csv:"Total Price"`
	Currency          string   `csv:"Currency"`
	CustomerID        string   `csv:"Customer ID"`
	CustomerName      string   `csv:"Customer Name"`
	CustomerEmail     string   `csv:"Customer Email"`
	LineItemID        string   `csv:"Line Item ID"`
	ProductID         string   `csv:"Product ID"`
	ProductTitle      string   `csv:"Product Title"`
	ProductHandle     string   `csv:"Product Handle"`
	VariantID         string   `csv:"Variant ID"`
	VariantTitle      string   `csv:"Variant Title"`
	VariantSKU        string   `csv:"Variant SKU"`
	VariantBarcode    string   `csv:"Variant Barcode"`
	Quantity          *int     `csv:"Quantity"`
	UnitPrice         *float64 `csv:"Unit Price"`
	UnitPriceCurrency string   `csv:"Unit Price Currency"`
}

// Flatten expands orders into rows in order, line items in order.
func Flatten(orders []model.Order) []Row {
	rows := make([]Row, 0, len(orders))
	for _, o := range orders {
		base := Row{
			OrderID:           o.ID,
			OrderName:         o.Name,
			CreatedAt:         o.CreatedAt.UTC().Format(time.RFC3339),
			FinancialStatus:   o.FinancialStatus,
			FulfillmentStatus: o.FulfillmentStatus,
			TotalPrice:        o.TotalPrice,
			Currency:          o.Currency,
			CustomerID:        o.Customer.ID,
			CustomerName:      o.Customer.Name,
			CustomerEmail:     o.Customer.Email,
		}
		if len(o.LineItems) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, li := range o.LineItems {
			r := base
			r.LineItemID = li.ID
			r.ProductID = li.ProductID
			r.ProductTitle = li.ProductTitle
			r.ProductHandle = li.ProductHandle
			r.VariantID = li.VariantID
			r.VariantTitle = li.VariantTitle
			r.VariantSKU = li.VariantSKU
			r.VariantBarcode = li.VariantBarcode
			qty, price := li.Quantity, li.UnitPrice
			r.Quantity = &qty
			r.UnitPrice = &price
			r.UnitPriceCurrency = li.Currency
			rows = append(rows, r)
		}
	}
	return rows
}

// Write encodes rows to w in format f.
func Write(w io.Writer, f Format, rows []Row) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatXLSX:
		return WriteXLSX(w, rows)
	default:
		return eris.Errorf("export: unsupported format %q", f)
	}
}

// WriteCSV writes a header line followed by one line per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := encodeRows(cw, rows); err != nil {
		return err
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes a single worksheet with the same columns as WriteCSV.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	if err := encodeRows(sheetWriter{sheet: sheet}, rows); err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func encodeRows(w csvutil.Writer, rows []Row) error {
	enc := csvutil.NewEncoder(w)
	if err := enc.EncodeHeader(Row{}); err != nil {
		return eris.Wrap(err, "export: encode header")
	}
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return eris.Wrapf(err, "export: encode row %d", i)
		}
	}
	return nil
}

// sheetWriter adapts an xlsx sheet to csvutil.Writer.
type sheetWriter struct {
	sheet *xlsx.Sheet
}

func (s sheetWriter) Write(record []string) error {
	row := s.sheet.AddRow()
	for _, v := range record {
		row.AddCell().SetString(v)
	}
	return nil
}
