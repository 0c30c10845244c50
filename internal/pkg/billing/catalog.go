package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/internal/pkg/cache"
)

const (
	DefaultPlanCacheTTL = 6 * time.Hour

	planCacheKeyPrefix = "plan:"
	planListCacheKey   = "plans:active"
)

// Catalog is the read-mostly plan registry. Reads go through the cache;
// administrative edits invalidate it before returning.
type Catalog struct {
	repo     Repository
	cache    cache.Store
	ttl      time.Duration
	validate *validator.Validate
}

func NewCatalog(repo Repository, store cache.Store, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultPlanCacheTTL
	}
	return &Catalog{
		repo:     repo,
		cache:    store,
		ttl:      ttl,
		validate: validator.New(),
	}
}

// GetPlan returns the catalog row for planType, active or not.
func (c *Catalog) GetPlan(ctx context.Context, planType models.PlanType) (*models.Plan, error) {
	if !planType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, planType)
	}

	key := planCacheKeyPrefix + string(planType)
	var cached models.Plan
	if c.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	plan, err := c.repo.FindPlanByType(ctx, planType)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planType)
	}
	if err != nil {
		return nil, transient("load plan", err)
	}
	c.writeCache(ctx, key, plan)
	return plan, nil
}

// ListPlans returns the visible plans ordered by price.
func (c *Catalog) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var cached []models.Plan
	if c.readCache(ctx, planListCacheKey, &cached) {
		return cached, nil
	}

	plans, err := c.repo.ListPlans(ctx, true)
	if err != nil {
		return nil, transient("list plans", err)
	}
	c.writeCache(ctx, planListCacheKey, plans)
	return plans, nil
}

// UpdatePlan applies an administrative edit to the plan identified by
// update.Type. The plan type itself cannot be changed.
func (c *Catalog) UpdatePlan(ctx context.Context, update models.Plan) (*models.Plan, error) {
	if err := c.validate.Struct(update); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	existing, err := c.repo.FindPlanByType(ctx, update.Type)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, update.Type)
	}
	if err != nil {
		return nil, transient("load plan", err)
	}

	existing.Name = update.Name
	existing.MaxProducts = update.MaxProducts
	existing.MaxImagesPerProduct = update.MaxImagesPerProduct
	existing.CanFeatureProducts = update.CanFeatureProducts
	existing.Price = update.Price
	existing.IsActive = update.IsActive

	if err := c.repo.SavePlan(ctx, existing); err != nil {
		return nil, transient("save plan", err)
	}
	if err := c.Invalidate(ctx, existing.Type); err != nil {
		return nil, fmt.Errorf("invalidate plan cache: %w", err)
	}
	log.Infof("[Billing] Plan %s updated, cache invalidated", existing.Type)
	return existing, nil
}

// Invalidate drops the cached entries for the given plan types and the list.
func (c *Catalog) Invalidate(ctx context.Context, planTypes ...models.PlanType) error {
	keys := []string{planListCacheKey}
	for _, t := range planTypes {
		keys = append(keys, planCacheKeyPrefix+string(t))
	}
	return c.cache.Delete(ctx, keys...)
}

func (c *Catalog) readCache(ctx context.Context, key string, dst interface{}) bool {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Warnf("[Billing] Plan cache read %s failed, using database: %v", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Warnf("[Billing] Plan cache entry %s is corrupt: %v", key, err)
		return false
	}
	return true
}

func (c *Catalog) writeCache(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		log.Warnf("[Billing] Plan cache write %s failed: %v", key, err)
	}
}
