package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	calculatordomain "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/domain"
	ierr "github.com/harvardinformatics/ifxbilling-sub000/internal/errors"
	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Registry maps calculator identifiers to strategies.
type Registry struct {
	log         *zap.Logger
	productRepo productdomain.Repository

	mu         sync.RWMutex
	strategies map[string]calculatordomain.Strategy
}

type RegistryParam struct {
	fx.In

	Log         *zap.Logger
	ProductRepo productdomain.Repository
	Strategies  []calculatordomain.Strategy `group:"calculators"`
}

func NewRegistry(p RegistryParam) (*Registry, error) {
	r := &Registry{
		log:         p.Log.Named("calculator.registry"),
		productRepo: p.ProductRepo,
		strategies:  make(map[string]calculatordomain.Strategy, len(p.Strategies)),
	}
	for _, s := range p.Strategies {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(s calculatordomain.Strategy) error {
	if s == nil {
		return ierr.NewError("nil calculator strategy").Mark(ierr.ErrConfiguration)
	}
	name := normalizeName(s.Name())
	if name == "" {
		return ierr.NewError("calculator strategy has no name").Mark(ierr.ErrConfiguration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[name]; exists {
		return ierr.NewErrorf("calculator strategy %q registered twice", name).Mark(ierr.ErrConfiguration)
	}
	r.strategies[name] = s
	return nil
}

func (r *Registry) Resolve(name string) (calculatordomain.Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[normalizeName(name)]
	if !ok {
		return nil, ierr.NewErrorf("unknown billing calculator %q", name).
			WithHintf("registered calculators: %s", strings.Join(r.namesLocked(), ", ")).
			Mark(ierr.ErrConfiguration)
	}
	return s, nil
}

func (r *Registry) StrategyFor(product productdomain.Product) (calculatordomain.Strategy, error) {
	s, err := r.Resolve(product.BillingCalculator)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessagef("product %s", product.Name).
			Mark(ierr.ErrConfiguration)
	}
	return s, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate fails when a billable product names an unregistered calculator.
func (r *Registry) Validate(ctx context.Context, db *gorm.DB) error {
	products, err := r.productRepo.ListBillableProducts(ctx, db, nil)
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrPersistence)
	}

	var missing []string
	for _, p := range products {
		if _, err := r.Resolve(p.BillingCalculator); err != nil {
			missing = append(missing, p.Name+" ("+p.BillingCalculator+")")
		}
	}
	if len(missing) > 0 {
		return ierr.NewErrorf("billable products use unknown calculators: %s", strings.Join(missing, ", ")).
			Mark(ierr.ErrConfiguration)
	}
	r.log.Debug("calculator registry validated", zap.Int("products", len(products)))
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var _ calculatordomain.Source = (*Registry)(nil)
