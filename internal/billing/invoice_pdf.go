package billing

import (
	"bytes"
	"fmt"

	"cardsite-backend/internal/models"

	"github.com/jung-kurt/gofpdf"
)

// FormatAmount renders minor units, e.g. 49900 INR -> "INR 499.00".
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, amount/100, amount%100)
}

// RenderInvoicePDF lays out a single-page A4 invoice.
func RenderInvoicePDF(inv models.Invoice, sub models.Subscription, brand models.Brand) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(inv.Number, false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 12, "INVOICE")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 11)
	rows := [][2]string{
		{"Invoice number", inv.Number},
		{"Status", string(inv.Status)},
		{"Issued", inv.CreatedAt.Format("2006-01-02")},
		{"Billed to", brand.Name},
		{"License key", sub.LicenseKey},
	}
	if inv.PaidAt != nil {
		rows = append(rows, [2]string{"Paid at", inv.PaidAt.Format("2006-01-02 15:04:05")})
	}
	for _, r := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(50, 8, r[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, tr(r[1]), "", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(120, 9, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(0, 9, "Amount", "1", 1, "R", true, 0, "")

	period := fmt.Sprintf("%s (%s to %s)", sub.Plan.Name, sub.StartDate.Format("2006-01-02"), sub.EndDate.Format("2006-01-02"))
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(120, 9, tr(period), "1", 0, "L", false, 0, "")
	pdf.CellFormat(0, 9, FormatAmount(inv.Amount, inv.Currency), "1", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(120, 9, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(0, 9, FormatAmount(inv.Amount, inv.Currency), "1", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
