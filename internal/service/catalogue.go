package service

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/docling/docling-agent/internal/domain"
	"github.com/docling/docling-agent/internal/logger"
)

// CatalogueReader is the remote read surface for catalogue exports.
type CatalogueReader interface {
	Catalogue(ctx context.Context) ([]domain.ExtractedProduct, error)
	Suppliers(ctx context.Context) ([]string, error)
	Compare(ctx context.Context, search string) ([]domain.ExtractedProduct, error)
}

// CatalogueService reads the remote catalogue and produces XLSX exports.
type CatalogueService struct {
	api CatalogueReader
	log *logger.Logger
}

// NewCatalogueService creates a CatalogueService.
func NewCatalogueService(apiClient CatalogueReader, log *logger.Logger) *CatalogueService {
	if log == nil {
		log = logger.GetDefault()
	}
	return &CatalogueService{api: apiClient, log: log}
}

// ExportXLSX returns the full catalogue as an XLSX workbook.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - []byte: workbook bytes.
//   - error: non-nil if the catalogue cannot be fetched or rendered.
func (s *CatalogueService) ExportXLSX(ctx context.Context) ([]byte, error) {
	products, err := s.api.Catalogue(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalogue: %w", err)
	}
	return renderXLSX(products)
}

// renderXLSX builds the workbook from product rows.
func renderXLSX(products []domain.ExtractedProduct) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Catalogue"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{
		"Designation",
		"Fournisseur",
		"Famille",
		"Unite",
		"Prix brut HT",
		"Remise %",
		"Prix remise HT",
		"TVA %",
		"N Facture",
		"Date facture",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, p := range products {
		designation := p.DesignationFR
		if designation == "" {
			designation = p.DesignationRaw
		}
		values := []interface{}{
			designation,
			p.Fournisseur,
			p.Famille,
			p.Unite,
			p.PrixBrutHT,
			p.RemisePct,
			p.PrixRemiseHT,
			p.TVAPct,
			p.NumFacture,
			p.DateFacture,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
