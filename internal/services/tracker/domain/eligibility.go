package domain

import "slices"

// Eligible reports whether a sale counts toward a goal.
//
// A goal without criteria applies to all sales. Otherwise every criteria
// dimension is a whitelist: a non-empty list rejects the sale unless the
// corresponding attribute appears in it, and an empty list imposes no
// constraint. Missing context (nil pharmacy or product) resolves the
// attribute to the empty string, which fails any non-empty whitelist.
//
// The function is pure: no I/O, no side effects.
func Eligible(sale Sale, goal Goal, user User, pharmacy *Pharmacy, product *Product) bool {
	criteria := goal.Criteria
	if criteria == nil {
		return true
	}

	var brand, category string
	if product != nil {
		brand = product.Brand
		category = product.Category
	}
	var zone, clientCategory string
	if pharmacy != nil {
		zone = pharmacy.Zone
		clientCategory = pharmacy.ClientCategory
	}

	if !whitelisted(criteria.Products, sale.ProductID) {
		return false
	}
	if !whitelisted(criteria.Brands, brand) {
		return false
	}
	if !whitelisted(criteria.Categories, category) {
		return false
	}
	if !whitelisted(criteria.PharmacyIDs, user.PharmacyID) {
		return false
	}
	if !whitelisted(criteria.Zones, zone) {
		return false
	}
	if !whitelisted(criteria.ClientCategories, clientCategory) {
		return false
	}
	return true
}

func whitelisted(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	return slices.Contains(list, value)
}
