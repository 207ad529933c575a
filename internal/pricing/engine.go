package pricing

import (
	"github.com/patchline/api/internal/domain"
)

// Catalog is the read-only product snapshot the engine prices against.
type Catalog interface {
	Product(id domain.ProductID) (domain.Product, bool)
}

// SnapshotCatalog is an in-memory Catalog keyed by canonical product id.
type SnapshotCatalog map[domain.ProductID]domain.Product

// Product implements Catalog.
func (c SnapshotCatalog) Product(id domain.ProductID) (domain.Product, bool) {
	p, ok := c[id]
	return p, ok
}

// Engine derives line-item unit prices from the base product price plus
// embroidery customization surcharges. Pure: no side effects, no caching.
type Engine struct {
	legacyMaterialCost bool
}

// EngineDeps configures the pricing engine.
type EngineDeps struct {
	// LegacySingleDesignMaterialCost charges material cost on the legacy
	// single-design path. The multi-design path always charges it; the two
	// paths deliberately disagree while the intended behaviour is unresolved.
	LegacySingleDesignMaterialCost bool
}

// NewEngine constructs a pricing Engine.
func NewEngine(deps EngineDeps) *Engine {
	return &Engine{legacyMaterialCost: deps.LegacySingleDesignMaterialCost}
}

// UnitPrice returns the effective per-unit price in cents for the item.
// An unresolvable product prices to zero rather than erroring.
func (e *Engine) UnitPrice(item domain.CartItem, catalog Catalog) int64 {
	return e.Breakdown(item, catalog).Unit
}

// Breakdown computes the full per-unit pricing decomposition.
func (e *Engine) Breakdown(item domain.CartItem, catalog Catalog) domain.PricingBreakdown {
	breakdown := domain.PricingBreakdown{ProductID: item.ProductID}
	if catalog == nil {
		return breakdown
	}
	product, ok := catalog.Product(item.ProductID)
	if !ok {
		return breakdown
	}

	breakdown.Base = product.PriceCents
	breakdown.Unit = product.PriceCents

	if item.Customization == nil {
		return breakdown
	}

	selection := item.Customization.Selection
	switch {
	case selection.IsMulti():
		for _, design := range selection.Multiple {
			designBreakdown := domain.DesignPricingBreakdown{Placement: design.Placement}
			if design.Dimensions.Known() {
				designBreakdown.Material = MaterialCostFor(design.Dimensions).Total()
			}
			designBreakdown.Styles = styleSum(design.Styles)
			breakdown.Styles += designBreakdown.Styles
			breakdown.Material += designBreakdown.Material
			breakdown.Designs = append(breakdown.Designs, designBreakdown)
		}
	case selection.Single != nil:
		breakdown.Styles = styleSum(selection.Single.Styles)
		if e.legacyMaterialCost && selection.Single.Dimensions.Known() {
			breakdown.Material = MaterialCostFor(selection.Single.Dimensions).Total()
		}
	}

	breakdown.Unit = breakdown.Base + breakdown.Styles + breakdown.Material
	return breakdown
}

// Subtotal prices every cart line and sums quantity-weighted unit prices.
func (e *Engine) Subtotal(items []domain.CartItem, catalog Catalog) int64 {
	var subtotal int64
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		subtotal += e.UnitPrice(item, catalog) * int64(item.Quantity)
	}
	return subtotal
}

// Tax applies a flat basis-point rate to the subtotal, truncating to cents.
func Tax(subtotal, basisPoints int64) int64 {
	if subtotal <= 0 || basisPoints <= 0 {
		return 0
	}
	return subtotal * basisPoints / 10000
}

func styleSum(styles domain.StyleSelections) int64 {
	var sum int64
	for _, option := range styles.SingleSelect() {
		if option != nil {
			sum += option.PriceCents
		}
	}
	for _, thread := range styles.Threads {
		sum += thread.PriceCents
	}
	for _, upgrade := range styles.Upgrades {
		sum += upgrade.PriceCents
	}
	return sum
}
