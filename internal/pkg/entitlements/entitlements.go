package entitlements

import (
	"github.com/ManuelReschke/MarketFox/app/models"
)

// Quota is the usage summary of a business, as returned by the quota API.
type Quota struct {
	Plan                models.PlanType `json:"plan"`
	Active              bool            `json:"active"`
	MaxProducts         int             `json:"maxProducts"`
	ProductsUsed        *int            `json:"productsUsed"`
	MaxImagesPerProduct int             `json:"maxImagesPerProduct"`
	CanAddProduct       bool            `json:"canAddProduct"`
	CanFeatureProducts  bool            `json:"canFeatureProducts"`
}

// CanAddProduct reports whether the business may create one more product.
// Missing plan data or an unset usage counter deny the action.
func CanAddProduct(cp *models.CurrentPlan) bool {
	if cp == nil || cp.Plan == nil {
		return false
	}
	if cp.Plan.MaxProducts == models.UnlimitedProducts {
		return true
	}
	if cp.ProductsUsed == nil {
		return false
	}
	return *cp.ProductsUsed < cp.Plan.MaxProducts
}

// CanFeatureProducts mirrors the plan flag, false on missing data.
func CanFeatureProducts(cp *models.CurrentPlan) bool {
	if cp == nil || cp.Plan == nil {
		return false
	}
	return cp.Plan.CanFeatureProducts
}

// CanAddImage reports whether a product that already has imagesOnProduct
// images may get another one.
func CanAddImage(cp *models.CurrentPlan, imagesOnProduct int) bool {
	if cp == nil || cp.Plan == nil || imagesOnProduct < 0 {
		return false
	}
	if cp.Plan.MaxImagesPerProduct == models.UnlimitedProducts {
		return true
	}
	return imagesOnProduct < cp.Plan.MaxImagesPerProduct
}

// Summarize builds the quota view of a plan assignment.
func Summarize(cp *models.CurrentPlan) Quota {
	q := Quota{
		CanAddProduct:      CanAddProduct(cp),
		CanFeatureProducts: CanFeatureProducts(cp),
	}
	if cp == nil {
		return q
	}
	q.Active = cp.IsActive
	q.ProductsUsed = cp.ProductsUsed
	if cp.Plan != nil {
		q.Plan = cp.Plan.Type
		q.MaxProducts = cp.Plan.MaxProducts
		q.MaxImagesPerProduct = cp.Plan.MaxImagesPerProduct
	}
	return q
}
