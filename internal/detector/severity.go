package detector

// Band is an ordinal severity label.
type Band string

const (
	BandCritical Band = "critical"
	BandHigh     Band = "high"
	BandMedium   Band = "medium"
	BandLow      Band = "low"
)

// Rank orders bands: low < medium < high < critical.
func (b Band) Rank() int {
	switch b {
	case BandCritical:
		return 3
	case BandHigh:
		return 2
	case BandMedium:
		return 1
	default:
		return 0
	}
}

// Bands holds the lower severity bound of each band above low.
type Bands struct {
	Critical float64 `mapstructure:"critical" json:"critical"`
	High     float64 `mapstructure:"high" json:"high"`
	Medium   float64 `mapstructure:"medium" json:"medium"`
}

// DefaultBands returns the stock thresholds: 20, 10 and 5.
func DefaultBands() Bands {
	return Bands{Critical: 20, High: 10, Medium: 5}
}

// Label maps severity to its band.
func (b Bands) Label(severity float64) Band {
	switch {
	case severity >= b.Critical:
		return BandCritical
	case severity >= b.High:
		return BandHigh
	case severity >= b.Medium:
		return BandMedium
	default:
		return BandLow
	}
}
