package domain

// RemiseType selects how a global quote discount is applied.
type RemiseType string

const (
	RemisePercent RemiseType = "percent"
	RemiseAmount  RemiseType = "amount"
)

// DevisOptions holds the commercial parameters of a quote.
type DevisOptions struct {
	Entreprise    string
	Client        string
	DevisNum      string
	TVARate       float64
	RemiseGlobale float64
	RemiseType    RemiseType
}

// DevisTotals is the computed pricing summary of a quote.
type DevisTotals struct {
	TotalHT      float64
	RemiseAmount float64
	NetHT        float64
	TVA          float64
	TotalTTC     float64
}
