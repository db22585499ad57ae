package inventory

import "github.com/shopspring/decimal"

// ComputeProductStats derives product aggregates from its variants. It is a pure
// function of the variant set.
func ComputeProductStats(variants []Variant) ProductStats {
	stats := ProductStats{TotalVariants: len(variants), MinPrice: decimal.Zero, MaxPrice: decimal.Zero}
	for i, v := range variants {
		stats.TotalStock += v.Quantity
		if i == 0 || v.UnitPrice.LessThan(stats.MinPrice) {
			stats.MinPrice = v.UnitPrice
		}
		if i == 0 || v.UnitPrice.GreaterThan(stats.MaxPrice) {
			stats.MaxPrice = v.UnitPrice
		}
	}
	return stats
}
