package domain

// ExtractedProduct is one invoice line item returned by AI extraction,
// pending human validation before being committed to the catalogue.
// Field names follow the remote catalogue schema (French BTP vocabulary).
type ExtractedProduct struct {
	// Key is a synthetic identifier assigned client-side for stable list
	// rendering. It is distinct from the backend ID and not guaranteed
	// stable across jobs.
	Key string `json:"_key,omitempty"`

	ID             int     `json:"id,omitempty"`
	DesignationRaw string  `json:"designation_raw,omitempty"`
	DesignationFR  string  `json:"designation_fr,omitempty"`
	Fournisseur    string  `json:"fournisseur,omitempty"`
	Famille        string  `json:"famille,omitempty"`
	Unite          string  `json:"unite,omitempty"`
	Quantite       float64 `json:"quantite,omitempty"`
	PrixBrutHT     float64 `json:"prix_brut_ht,omitempty"`
	RemisePct      float64 `json:"remise_pct,omitempty"`
	PrixRemiseHT   float64 `json:"prix_remise_ht,omitempty"`
	PrixNetHT      float64 `json:"prix_net_ht,omitempty"`
	TVAPct         float64 `json:"tva_pct,omitempty"`
	NumFacture     string  `json:"num_facture,omitempty"`
	DateFacture    string  `json:"date_facture,omitempty"`

	// Confidence is "low" when the extraction flagged the line for human
	// review, empty otherwise.
	Confidence string `json:"confidence,omitempty"`
}

// NeedsReview reports whether the line was flagged low-confidence.
func (p ExtractedProduct) NeedsReview() bool {
	return p.Confidence == "low"
}

// ProductField names one mutable field of an ExtractedProduct for
// field-by-field validation edits.
type ProductField string

const (
	FieldDesignationRaw ProductField = "designation_raw"
	FieldDesignationFR  ProductField = "designation_fr"
	FieldFournisseur    ProductField = "fournisseur"
	FieldFamille        ProductField = "famille"
	FieldUnite          ProductField = "unite"
	FieldQuantite       ProductField = "quantite"
	FieldPrixBrutHT     ProductField = "prix_brut_ht"
	FieldRemisePct      ProductField = "remise_pct"
	FieldPrixRemiseHT   ProductField = "prix_remise_ht"
	FieldPrixNetHT      ProductField = "prix_net_ht"
	FieldTVAPct         ProductField = "tva_pct"
	FieldNumFacture     ProductField = "num_facture"
	FieldDateFacture    ProductField = "date_facture"
	FieldConfidence     ProductField = "confidence"
)
