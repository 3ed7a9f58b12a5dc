package domain

import "strings"

// Sale is one immutable transactional record. Its creation is the event
// that triggers goal evaluation.
type Sale struct {
	ID         string
	UserID     string
	PharmacyID string
	ProductID  string
	Quantity   float64
	TotalPrice float64
}

// Validate checks the minimal field set required to process the sale.
func (s Sale) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return ErrSaleMissingUserID
	}
	return nil
}
