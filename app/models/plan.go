package models

import (
	"fmt"
	"strings"
	"time"
)

// PlanType identifies a catalog tier.
type PlanType string

const (
	PlanFree    PlanType = "FREE"
	PlanBasic   PlanType = "BASIC"
	PlanPremium PlanType = "PREMIUM"
)

// UnlimitedProducts marks a plan without a product ceiling.
const UnlimitedProducts = -1

// PlanTypes lists every known tier, cheapest first.
var PlanTypes = []PlanType{PlanFree, PlanBasic, PlanPremium}

// ParsePlanType normalizes user input ("basic", " Premium ") to a known PlanType.
func ParsePlanType(raw string) (PlanType, error) {
	p := PlanType(strings.ToUpper(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown plan type %q", raw)
	}
	return p, nil
}

func (p PlanType) Valid() bool {
	switch p {
	case PlanFree, PlanBasic, PlanPremium:
		return true
	}
	return false
}

func (p PlanType) String() string { return string(p) }

// Plan is a catalog row describing a tier and its quotas.
type Plan struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Type                PlanType  `gorm:"type:varchar(20);not null;uniqueIndex:ux_plans_type" json:"type" validate:"required,oneof=FREE BASIC PREMIUM"`
	Name                string    `gorm:"type:varchar(100);not null" json:"name" validate:"required,max=100"`
	MaxProducts         int       `gorm:"not null;default:0" json:"max_products" validate:"gte=-1"`
	MaxImagesPerProduct int       `gorm:"not null" json:"max_images_per_product" validate:"gte=-1"`
	CanFeatureProducts  bool      `gorm:"not null;default:false" json:"can_feature_products"`
	Price               int64     `gorm:"not null;default:0" json:"price" validate:"gte=0"`
	IsActive            bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Unlimited reports whether the plan has no product ceiling.
func (p *Plan) Unlimited() bool {
	return p.MaxProducts == UnlimitedProducts
}

// Purchasable reports whether the plan can be bought through checkout.
func (p *Plan) Purchasable() bool {
	return p.IsActive && p.Type != PlanFree && p.Price > 0
}
