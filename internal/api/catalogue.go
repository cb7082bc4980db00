package api

import (
	"context"
	"fmt"

	"github.com/docling/docling-agent/internal/domain"
)

// SaveBatch posts a validated product batch to the catalogue.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - products: validated products to commit.
//   - source: upload source tag recorded with the batch.
//
// Returns:
//   - error: non-nil if the batch is rejected.
func (c *Client) SaveBatch(ctx context.Context, products []domain.ExtractedProduct, source domain.Source) error {
	payload := map[string]interface{}{
		"produits": products,
		"source":   string(source),
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/api/v1/catalogue/batch")
	if err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	return checkStatus(resp)
}

// Catalogue returns the full product catalogue.
func (c *Client) Catalogue(ctx context.Context) ([]domain.ExtractedProduct, error) {
	var out struct {
		Produits []domain.ExtractedProduct `json:"produits"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/catalogue")
	if err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return out.Produits, nil
}

// Suppliers returns the known supplier names.
func (c *Client) Suppliers(ctx context.Context) ([]string, error) {
	var out struct {
		Fournisseurs []string `json:"fournisseurs"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/catalogue/fournisseurs")
	if err != nil {
		return nil, fmt.Errorf("suppliers: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return out.Fournisseurs, nil
}

// Compare searches the catalogue for price comparison across suppliers.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - search: free-text designation search.
//
// Returns:
//   - []domain.ExtractedProduct: matching catalogue entries.
//   - error: non-nil on transport or server failure.
func (c *Client) Compare(ctx context.Context, search string) ([]domain.ExtractedProduct, error) {
	var out struct {
		Produits []domain.ExtractedProduct `json:"produits"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("search", search).
		SetResult(&out).
		Get("/api/v1/catalogue/compare")
	if err != nil {
		return nil, fmt.Errorf("compare: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return out.Produits, nil
}

// CatalogueStats is the aggregate view the backend keeps over the catalogue.
type CatalogueStats struct {
	TotalProduits     int `json:"total_produits"`
	TotalFournisseurs int `json:"total_fournisseurs"`
	TotalFamilles     int `json:"total_familles"`
	LowConfidence     int `json:"low_confidence"`
	DepuisMobile      int `json:"depuis_mobile"`
	CetteSemaine      int `json:"cette_semaine"`
}

// Stats returns the catalogue aggregates.
func (c *Client) Stats(ctx context.Context) (*CatalogueStats, error) {
	var out CatalogueStats
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/stats")
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return &out, nil
}

// HistoryEntry is one processed invoice in the audit trail.
type HistoryEntry struct {
	ID                 int     `json:"id"`
	Filename           string  `json:"filename"`
	Statut             string  `json:"statut"`
	Source             string  `json:"source"`
	ModeleIA           string  `json:"modele_ia"`
	NbProduitsExtraits int     `json:"nb_produits_extraits"`
	CoutAPIUSD         float64 `json:"cout_api_usd,string"`
	CreatedAt          string  `json:"created_at"`
}

// History returns the processed-invoice audit trail.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var out struct {
		History []HistoryEntry `json:"history"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/invoices")
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return out.History, nil
}
