// Package store holds the process-wide client state: selected AI model,
// current single-file job, extracted products pending validation, and the
// batch upload queue. All mutations go through named operations; presentation
// and the queue manager share this single source of truth.
package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/docling/docling-agent/internal/domain"
	"github.com/docling/docling-agent/internal/logger"
	"github.com/docling/docling-agent/internal/repository"
)

// Preferences is the durable backing for the few settings that survive
// restarts. The batch queue and product list are deliberately ephemeral:
// queue items reference large binary payloads that should not be serialized
// across sessions.
type Preferences interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Store is the single mutable shared resource of the client core.
type Store struct {
	mu    sync.Mutex
	prefs Preferences

	selectedModel     string
	currentJob        *domain.Job
	extractedProducts []domain.ExtractedProduct
	pendingSource     domain.Source

	batchQueue []domain.UploadTask
}

// New creates a Store. The selected model is restored from preferences when
// one was persisted, falling back to defaultModel.
// Parameters:
//   - prefs: durable preference backing; may be nil (nothing persists).
//   - defaultModel: model used when no preference is stored.
// Returns:
//   - *Store: initialized store.
func New(prefs Preferences, defaultModel string) *Store {
	s := &Store{
		prefs:         prefs,
		selectedModel: defaultModel,
		pendingSource: domain.SourcePC,
	}
	if prefs != nil {
		if v, err := prefs.Get(context.Background(), repository.PrefSelectedModel); err == nil && v != "" {
			s.selectedModel = v
		}
	}
	return s
}

// SelectedModel returns the currently selected AI model.
func (s *Store) SelectedModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedModel
}

// SetModel selects the AI model and persists the choice.
func (s *Store) SetModel(model string) {
	s.mu.Lock()
	s.selectedModel = model
	s.mu.Unlock()

	if s.prefs != nil {
		if err := s.prefs.Set(context.Background(), repository.PrefSelectedModel, model); err != nil {
			logger.GetDefault().WithError(err).Warn("Failed to persist selected model")
		}
	}
}

// SetJobStart records the single-file job in flight and clears any previous
// product list.
func (s *Store) SetJobStart(jobID, previewPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentJob = &domain.Job{JobID: jobID, PreviewPath: previewPath, Source: s.pendingSource}
	s.extractedProducts = nil
}

// SetJobComplete stores the extracted products and closes the current job.
// A nil product slice normalizes to an empty list. Every product without a
// backend identifier gets a synthetic key formed deterministically from its
// designation and supplier plus a disambiguating index, so rendering keys
// stay stable across re-reads within the same job.
func (s *Store) SetJobComplete(products []domain.ExtractedProduct, source domain.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyed := make([]domain.ExtractedProduct, 0, len(products))
	for i, p := range products {
		if p.Key == "" {
			if p.ID != 0 {
				p.Key = strconv.Itoa(p.ID)
			} else {
				p.Key = syntheticKey(p, i)
			}
		}
		keyed = append(keyed, p)
	}

	s.extractedProducts = keyed
	s.currentJob = nil
	if source != "" {
		s.pendingSource = source
	}
}

// syntheticKey builds a list-rendering key from truncated designation and
// supplier fields plus the element index.
func syntheticKey(p domain.ExtractedProduct, index int) string {
	designation := p.DesignationRaw
	if designation == "" {
		designation = p.DesignationFR
	}
	return fmt.Sprintf("val-%s-%s-%d", truncate(designation, 30), truncate(p.Fournisseur, 20), index)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Products returns a copy of the extracted product list.
func (s *Store) Products() []domain.ExtractedProduct {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ExtractedProduct, len(s.extractedProducts))
	copy(out, s.extractedProducts)
	return out
}

// Job returns the current single-file job, or nil.
func (s *Store) Job() *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentJob == nil {
		return nil
	}
	j := *s.currentJob
	return &j
}

// PendingSource returns the source tag of the products awaiting validation.
func (s *Store) PendingSource() domain.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingSource
}

// UpdateProduct mutates one field of the product at index, leaving every
// other index and field untouched. Out-of-range indices are a no-op.
func (s *Store) UpdateProduct(index int, field domain.ProductField, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.extractedProducts) {
		return
	}
	assignField(&s.extractedProducts[index], field, value)
}

// assignField applies one typed field edit. Unknown fields are ignored.
func assignField(p *domain.ExtractedProduct, field domain.ProductField, value interface{}) {
	switch field {
	case domain.FieldDesignationRaw:
		p.DesignationRaw = asString(value)
	case domain.FieldDesignationFR:
		p.DesignationFR = asString(value)
	case domain.FieldFournisseur:
		p.Fournisseur = asString(value)
	case domain.FieldFamille:
		p.Famille = asString(value)
	case domain.FieldUnite:
		p.Unite = asString(value)
	case domain.FieldQuantite:
		p.Quantite = asFloat(value)
	case domain.FieldPrixBrutHT:
		p.PrixBrutHT = asFloat(value)
	case domain.FieldRemisePct:
		p.RemisePct = asFloat(value)
	case domain.FieldPrixRemiseHT:
		p.PrixRemiseHT = asFloat(value)
	case domain.FieldPrixNetHT:
		p.PrixNetHT = asFloat(value)
	case domain.FieldTVAPct:
		p.TVAPct = asFloat(value)
	case domain.FieldNumFacture:
		p.NumFacture = asString(value)
	case domain.FieldDateFacture:
		p.DateFacture = asString(value)
	case domain.FieldConfidence:
		p.Confidence = asString(value)
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}

// RemoveProduct removes the product at index, shifting later elements down.
// Out-of-range indices are a no-op.
func (s *Store) RemoveProduct(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.extractedProducts) {
		return
	}
	s.extractedProducts = append(s.extractedProducts[:index], s.extractedProducts[index+1:]...)
}

// ClearJob resets the single-file job state and the product list.
func (s *Store) ClearJob() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentJob = nil
	s.extractedProducts = nil
	s.pendingSource = domain.SourcePC
}
