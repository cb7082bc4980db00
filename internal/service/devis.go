package service

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/docling/docling-agent/internal/domain"
	"github.com/docling/docling-agent/internal/logger"
	"github.com/docling/docling-agent/internal/repository"
	"github.com/docling/docling-agent/internal/store"
)

// DevisService builds BTP quotes from catalogue products: pricing totals,
// sequential numbering, and client-side PDF rendering.
type DevisService struct {
	prefs store.Preferences
	log   *logger.Logger
}

// NewDevisService creates a DevisService. prefs backs the per-year quote
// counter; nil disables persistence (preview numbering only).
func NewDevisService(prefs store.Preferences, log *logger.Logger) *DevisService {
	if log == nil {
		log = logger.GetDefault()
	}
	return &DevisService{prefs: prefs, log: log}
}

// ComputeTotals derives the quote pricing summary. Line totals use the
// discounted unit price times quantity (quantity defaults to 1). The global
// discount is either a percentage of the subtotal or a fixed amount clamped
// to it; VAT applies after the discount.
func ComputeTotals(products []domain.ExtractedProduct, opts domain.DevisOptions) domain.DevisTotals {
	var totals domain.DevisTotals
	for _, p := range products {
		totals.TotalHT += lineTotal(p)
	}

	switch opts.RemiseType {
	case domain.RemiseAmount:
		totals.RemiseAmount = opts.RemiseGlobale
		if totals.RemiseAmount > totals.TotalHT {
			totals.RemiseAmount = totals.TotalHT
		}
	default:
		totals.RemiseAmount = totals.TotalHT * opts.RemiseGlobale / 100
	}

	totals.NetHT = totals.TotalHT - totals.RemiseAmount
	totals.TVA = totals.NetHT * opts.TVARate / 100
	totals.TotalTTC = totals.NetHT + totals.TVA
	return totals
}

func lineTotal(p domain.ExtractedProduct) float64 {
	qty := p.Quantite
	if qty == 0 {
		qty = 1
	}
	return p.PrixRemiseHT * qty
}

// NextNumber allocates the next sequential quote number, DEV-YYYY-NNN. The
// counter resets every year and persists across restarts.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - string: allocated quote number.
//   - error: non-nil if the counter cannot be persisted.
func (s *DevisService) NextNumber(ctx context.Context) (string, error) {
	year := time.Now().Year()
	counter := s.peekCounter(ctx, year)

	if s.prefs != nil {
		if err := s.prefs.Set(ctx, repository.PrefDevisCounter, fmt.Sprintf("%d-%d", year, counter)); err != nil {
			return "", fmt.Errorf("persist devis counter: %w", err)
		}
	}
	return formatDevisNum(year, counter), nil
}

// PreviewNumber returns the number the next allocation would produce,
// without consuming it.
func (s *DevisService) PreviewNumber(ctx context.Context) string {
	year := time.Now().Year()
	return formatDevisNum(year, s.peekCounter(ctx, year))
}

// peekCounter reads the stored year-counter pair and returns the next
// counter value for the given year.
func (s *DevisService) peekCounter(ctx context.Context, year int) int {
	if s.prefs == nil {
		return 1
	}
	stored, err := s.prefs.Get(ctx, repository.PrefDevisCounter)
	if err != nil || stored == "" {
		return 1
	}
	parts := strings.SplitN(stored, "-", 2)
	if len(parts) != 2 {
		return 1
	}
	storedYear, _ := strconv.Atoi(parts[0])
	storedCounter, _ := strconv.Atoi(parts[1])
	if storedYear != year {
		return 1
	}
	return storedCounter + 1
}

func formatDevisNum(year, counter int) string {
	return fmt.Sprintf("DEV-%d-%03d", year, counter)
}

// GeneratePDF renders a quote document: company header, product table, and
// totals block.
// Parameters:
//   - products: quote lines.
//   - opts: commercial parameters; zero values get sensible defaults.
//
// Returns:
//   - []byte: the rendered PDF.
//   - error: non-nil if rendering fails.
func (s *DevisService) GeneratePDF(products []domain.ExtractedProduct, opts domain.DevisOptions) ([]byte, error) {
	if opts.Entreprise == "" {
		opts.Entreprise = "Mon Entreprise BTP"
	}
	if opts.Client == "" {
		opts.Client = "Client"
	}
	if opts.DevisNum == "" {
		opts.DevisNum = formatDevisNum(time.Now().Year(), 1)
	}
	if opts.TVARate == 0 {
		opts.TVARate = 21
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageW - left - right

	// Header
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(usable, 10, opts.Entreprise, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(usable/2, 6, "Devis N: "+opts.DevisNum, "", 0, "L", false, 0, "")
	pdf.CellFormat(usable/2, 6, "Date: "+time.Now().Format("02/01/2006"), "", 1, "R", false, 0, "")
	pdf.CellFormat(usable, 6, "Client: "+opts.Client, "", 1, "L", false, 0, "")
	pdf.Ln(4)

	// Table
	headers := []string{"#", "Designation", "Unite", "Qte", "PU HT", "Total HT"}
	widths := []float64{10, usable - 96, 18, 15, 25, 28}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(15, 23, 42)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(0, 0, 0)
	for i, p := range products {
		qty := p.Quantite
		if qty == 0 {
			qty = 1
		}
		designation := p.DesignationFR
		if designation == "" {
			designation = p.DesignationRaw
		}
		unite := p.Unite
		if unite == "" {
			unite = "u"
		}
		cells := []struct {
			text  string
			align string
		}{
			{strconv.Itoa(i + 1), "C"},
			{designation, "L"},
			{unite, "C"},
			{formatQty(qty), "C"},
			{fmt.Sprintf("%.2f", p.PrixRemiseHT), "R"},
			{fmt.Sprintf("%.2f", lineTotal(p)), "R"},
		}
		for j, c := range cells {
			pdf.CellFormat(widths[j], 6, c.text, "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	// Totals block
	totals := ComputeTotals(products, opts)
	writeTotal := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(usable-40, 6, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, value, "", 1, "R", false, 0, "")
	}
	writeTotal("Total HT:", fmt.Sprintf("%.2f EUR", totals.TotalHT), false)
	if totals.RemiseAmount > 0 {
		writeTotal("Remise:", fmt.Sprintf("-%.2f EUR", totals.RemiseAmount), false)
		writeTotal("Net HT:", fmt.Sprintf("%.2f EUR", totals.NetHT), false)
	}
	writeTotal(fmt.Sprintf("TVA %.0f%%:", opts.TVARate), fmt.Sprintf("%.2f EUR", totals.TVA), false)
	writeTotal("Total TTC:", fmt.Sprintf("%.2f EUR", totals.TotalTTC), true)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render devis pdf: %w", err)
	}
	s.log.WithFields(logger.Fields{
		"devis_num": opts.DevisNum,
		"lines":     len(products),
	}).Info("Devis PDF generated")
	return buf.Bytes(), nil
}

func formatQty(q float64) string {
	if q == float64(int64(q)) {
		return strconv.FormatInt(int64(q), 10)
	}
	return strconv.FormatFloat(q, 'f', 2, 64)
}
