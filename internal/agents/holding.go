package agents

import "time"

// HoldingStatus classifies a purchase/sale date pair for capital gains
// treatment. The status is computed locally and injected into the tax prompt
// as ground truth, so the model can never misclassify the holding period.
type HoldingStatus string

const (
	LongTerm  HoldingStatus = "LONG-TERM"
	ShortTerm HoldingStatus = "SHORT-TERM"
	Unknown   HoldingStatus = "UNKNOWN"
)

// CalculateHoldingStatus returns LONG-TERM when the sale lands strictly
// after one calendar year from purchase. A Feb 29 purchase anniversaries on
// Feb 28, matching IRS holding-period practice. Unparseable dates yield
// Unknown.
func CalculateHoldingStatus(purchaseDate, sellDate string) HoldingStatus {
	p, err := time.Parse("2006-01-02", purchaseDate)
	if err != nil {
		return Unknown
	}
	s, err := time.Parse("2006-01-02", sellDate)
	if err != nil {
		return Unknown
	}

	oneYear := time.Date(p.Year()+1, p.Month(), p.Day(), 0, 0, 0, 0, time.UTC)
	if p.Month() == time.February && p.Day() == 29 {
		oneYear = time.Date(p.Year()+1, time.February, 28, 0, 0, 0, 0, time.UTC)
	}
	if s.After(oneYear) {
		return LongTerm
	}
	return ShortTerm
}
