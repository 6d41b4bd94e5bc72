package billing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Plan describes a purchasable subscription plan. Prices are stored in the
// currency's minor unit (kobo for NGN, cents for USD) to avoid float
// arithmetic on money.
type Plan struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Tier        string `yaml:"tier"`
	Price       int64  `yaml:"price"`
	Currency    string `yaml:"currency"`
	PeriodDays  int    `yaml:"period_days"`
	Active      bool   `yaml:"active"`
}

// PlanSource loads the plan catalog at startup.
type PlanSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

// FilePlanSource reads plans from a YAML file:
//
//	plans:
//	  - id: basic_monthly
//	    name: Basic
//	    tier: basic
//	    price: 250000
//	    currency: NGN
//	    period_days: 30
//	    active: true
type FilePlanSource struct {
	Path string
}

func (s FilePlanSource) Load(_ context.Context) ([]Plan, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.Join(ErrInvalidPlanCatalog, err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Join(ErrInvalidPlanCatalog, err)
	}
	return doc.Plans, nil
}

// StaticPlanSource serves a fixed plan list. Test fixture.
type StaticPlanSource []Plan

func (s StaticPlanSource) Load(_ context.Context) ([]Plan, error) {
	return s, nil
}

// Catalog is the validated, immutable plan lookup used by the workflow.
// Inactive plans stay resolvable by ID so historical ledger rows can
// still recover their tier and period.
type Catalog struct {
	plans map[string]Plan
	order []string
}

// NewCatalog loads and validates plans from src.
func NewCatalog(ctx context.Context, src PlanSource) (*Catalog, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, errors.Join(ErrInvalidPlanCatalog, errors.New("catalog is empty"))
	}

	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if err := validatePlan(p); err != nil {
			return nil, err
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, errors.Join(ErrInvalidPlanCatalog, fmt.Errorf("duplicate plan id %q", p.ID))
		}
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}

	// Cheapest plan first in listings.
	slices.SortStableFunc(c.order, func(a, b string) int {
		return int(c.plans[a].Price - c.plans[b].Price)
	})

	return c, nil
}

// Get resolves a plan by ID, active or not.
func (c *Catalog) Get(planID string) (Plan, error) {
	p, ok := c.plans[planID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// List returns active plans ordered by price.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, id := range c.order {
		if p := c.plans[id]; p.Active {
			out = append(out, p)
		}
	}
	return out
}

func validatePlan(p Plan) error {
	switch {
	case p.ID == "":
		return errors.Join(ErrInvalidPlanCatalog, errors.New("plan id is required"))
	case p.Tier == "":
		return errors.Join(ErrInvalidPlanCatalog, fmt.Errorf("plan %s: tier is required", p.ID))
	case p.Price <= 0:
		return errors.Join(ErrInvalidPlanCatalog, fmt.Errorf("plan %s: price must be positive, got %d", p.ID, p.Price))
	case len(p.Currency) != 3:
		return errors.Join(ErrInvalidPlanCatalog, fmt.Errorf("plan %s: currency must be a 3-letter code, got %q", p.ID, p.Currency))
	case p.PeriodDays <= 0:
		return errors.Join(ErrInvalidPlanCatalog, fmt.Errorf("plan %s: period_days must be positive, got %d", p.ID, p.PeriodDays))
	}
	return nil
}
