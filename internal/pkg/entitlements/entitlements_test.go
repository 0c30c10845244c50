package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/MarketFox/app/models"
)

func intPtr(v int) *int { return &v }

func planWith(maxProducts int, used *int) *models.CurrentPlan {
	return &models.CurrentPlan{
		IsActive:     true,
		Plan:         &models.Plan{Type: models.PlanBasic, MaxProducts: maxProducts, MaxImagesPerProduct: 3},
		ProductsUsed: used,
	}
}

func TestCanAddProduct(t *testing.T) {
	tests := []struct {
		name string
		cp   *models.CurrentPlan
		want bool
	}{
		{"no current plan", nil, false},
		{"unresolved plan", &models.CurrentPlan{ProductsUsed: intPtr(0)}, false},
		{"unlimited ignores usage", planWith(-1, intPtr(100000)), true},
		{"unlimited with unset usage", planWith(-1, nil), true},
		{"unset usage fails closed", planWith(10, nil), false},
		{"at limit", planWith(10, intPtr(10)), false},
		{"one below limit", planWith(10, intPtr(9)), true},
		{"over limit", planWith(10, intPtr(12)), false},
		{"zero quota", planWith(0, intPtr(0)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAddProduct(tt.cp))
		})
	}
}

func TestCanFeatureProducts(t *testing.T) {
	assert.False(t, CanFeatureProducts(nil))
	assert.False(t, CanFeatureProducts(&models.CurrentPlan{}))
	assert.False(t, CanFeatureProducts(planWith(10, intPtr(0))))
	assert.True(t, CanFeatureProducts(&models.CurrentPlan{Plan: &models.Plan{CanFeatureProducts: true}}))
}

func TestCanAddImage(t *testing.T) {
	cp := planWith(10, intPtr(0))
	assert.True(t, CanAddImage(cp, 2))
	assert.False(t, CanAddImage(cp, 3))
	assert.False(t, CanAddImage(cp, -1))
	assert.False(t, CanAddImage(nil, 0))

	cp.Plan.MaxImagesPerProduct = -1
	assert.True(t, CanAddImage(cp, 500))
}

func TestSummarize(t *testing.T) {
	q := Summarize(planWith(10, intPtr(4)))
	assert.Equal(t, models.PlanBasic, q.Plan)
	assert.True(t, q.Active)
	assert.Equal(t, 10, q.MaxProducts)
	assert.Equal(t, 4, *q.ProductsUsed)
	assert.True(t, q.CanAddProduct)
	assert.False(t, q.CanFeatureProducts)

	empty := Summarize(nil)
	assert.False(t, empty.CanAddProduct)
	assert.Empty(t, empty.Plan)
}
