package domain

// User is the reward recipient. Points are mutated only through the
// store's atomic increment.
type User struct {
	ID         string
	PharmacyID string
	Points     int64
}

// Pharmacy is read-only reference data for pharmacy-scoped criteria.
type Pharmacy struct {
	ID             string
	Zone           string
	ClientCategory string
}

// Product is read-only reference data for product-scoped criteria.
type Product struct {
	ID       string
	Brand    string
	Category string
}
