package service

import (
	"github.com/bwmarrin/snowflake"
	calculatordomain "github.com/harvardinformatics/ifxbilling-sub000/internal/calculator/domain"
	productdomain "github.com/harvardinformatics/ifxbilling-sub000/internal/product/domain"
)

// CachedStrategy is a strategy used for a product during one batch.
type CachedStrategy struct {
	Product  productdomain.Product
	Strategy calculatordomain.Strategy
}

// Cache remembers, in first-use order, the strategy chosen for each product
// in a single batch. It is not safe for concurrent use.
type Cache struct {
	registry *Registry
	entries  map[snowflake.ID]CachedStrategy
	order    []snowflake.ID
}

func NewCache(registry *Registry) *Cache {
	return &Cache{
		registry: registry,
		entries:  make(map[snowflake.ID]CachedStrategy),
	}
}

func (c *Cache) StrategyFor(product productdomain.Product) (calculatordomain.Strategy, error) {
	if entry, ok := c.entries[product.ID]; ok {
		return entry.Strategy, nil
	}
	s, err := c.registry.StrategyFor(product)
	if err != nil {
		return nil, err
	}
	c.entries[product.ID] = CachedStrategy{Product: product, Strategy: s}
	c.order = append(c.order, product.ID)
	return s, nil
}

func (c *Cache) Entries() []CachedStrategy {
	out := make([]CachedStrategy, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}

func (c *Cache) Len() int {
	return len(c.order)
}

var _ calculatordomain.Source = (*Cache)(nil)
