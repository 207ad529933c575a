package pricing

import (
	"testing"

	"github.com/patchline/api/internal/domain"
)

func testCatalog() SnapshotCatalog {
	return SnapshotCatalog{
		"5": domain.Product{ID: "5", Name: "Trucker Cap", PriceCents: 2000},
		"7": domain.Product{ID: "7", Name: "Work Jacket", PriceCents: 4500},
	}
}

func option(name string, price int64) *domain.StyleOption {
	return &domain.StyleOption{ID: name, Name: name, PriceCents: price}
}

func TestUnitPriceUncustomizedMatchesProductPrice(t *testing.T) {
	engine := NewEngine(EngineDeps{})
	catalog := testCatalog()

	item := domain.CartItem{ProductID: domain.ParseProductID("5"), Quantity: 1}
	if got := engine.UnitPrice(item, catalog); got != 2000 {
		t.Fatalf("expected base price 2000, got %d", got)
	}

	// Numeric ids normalise to the same canonical form.
	item.ProductID = domain.ProductIDFromInt(5)
	if got := engine.UnitPrice(item, catalog); got != 2000 {
		t.Fatalf("expected numeric id to resolve, got %d", got)
	}
}

func TestUnitPriceUnknownProductIsZero(t *testing.T) {
	engine := NewEngine(EngineDeps{})
	item := domain.CartItem{ProductID: "999", Quantity: 1}
	if got := engine.UnitPrice(item, testCatalog()); got != 0 {
		t.Fatalf("expected 0 for unknown product, got %d", got)
	}
}

func TestUnitPriceSingleSelectStyles(t *testing.T) {
	engine := NewEngine(EngineDeps{})
	item := domain.CartItem{
		ProductID: "5",
		Quantity:  1,
		Customization: &domain.Customization{
			Selection: domain.DesignSelection{
				Single: &domain.SingleDesign{
					Styles: domain.StyleSelections{
						Coverage: option("full", 300),
						Border:   option("merrowed", 150),
					},
				},
			},
		},
	}

	// Omitted categories contribute exactly zero.
	if got := engine.UnitPrice(item, testCatalog()); got != 2000+300+150 {
		t.Fatalf("expected 2450, got %d", got)
	}
}

func TestUnitPriceMultiSelectStylesOrderIndependent(t *testing.T) {
	engine := NewEngine(EngineDeps{})
	threads := []domain.StyleOption{{ID: "metallic", PriceCents: 200}, {ID: "neon", PriceCents: 125}}
	upgrades := []domain.StyleOption{{ID: "3d-puff", PriceCents: 400}}

	build := func(th []domain.StyleOption) domain.CartItem {
		return domain.CartItem{
			ProductID: "5",
			Quantity:  1,
			Customization: &domain.Customization{
				Selection: domain.DesignSelection{
					Single: &domain.SingleDesign{
						Styles: domain.StyleSelections{Threads: th, Upgrades: upgrades},
					},
				},
			},
		}
	}

	want := int64(2000 + 200 + 125 + 400)
	if got := engine.UnitPrice(build(threads), testCatalog()); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
	reversed := []domain.StyleOption{threads[1], threads[0]}
	if got := engine.UnitPrice(build(reversed), testCatalog()); got != want {
		t.Fatalf("expected order-independent %d, got %d", want, got)
	}
}

func TestUnitPriceMultiDesignAddsMaterialCost(t *testing.T) {
	engine := NewEngine(EngineDeps{})
	dims := domain.Dimensions{Width: 3, Height: 2}
	item := domain.CartItem{
		ProductID: "7",
		Quantity:  1,
		Customization: &domain.Customization{
			Selection: domain.DesignSelection{
				Multiple: []domain.DesignSpec{
					{
						Placement:  domain.PlacementLeftChest,
						Dimensions: dims,
						Styles:     domain.StyleSelections{Material: option("twill", 100)},
					},
					{
						Placement: domain.PlacementBack,
						// Unknown dimensions: no material contribution.
						Styles: domain.StyleSelections{Threads: []domain.StyleOption{{ID: "gold", PriceCents: 250}}},
					},
				},
			},
		},
	}

	material := MaterialCostFor(dims).Total()
	if material <= 0 {
		t.Fatalf("expected positive material cost for known dimensions")
	}
	want := 4500 + 100 + 250 + material
	breakdown := engine.Breakdown(item, testCatalog())
	if breakdown.Unit != want {
		t.Fatalf("expected %d, got %d", want, breakdown.Unit)
	}
	if len(breakdown.Designs) != 2 {
		t.Fatalf("expected 2 design breakdowns, got %d", len(breakdown.Designs))
	}
	if breakdown.Designs[1].Material != 0 {
		t.Fatalf("expected no material cost for unknown dimensions, got %d", breakdown.Designs[1].Material)
	}
}

func TestUnitPriceLegacyPathSkipsMaterialCost(t *testing.T) {
	dims := domain.Dimensions{Width: 4, Height: 4}
	item := domain.CartItem{
		ProductID: "5",
		Quantity:  1,
		Customization: &domain.Customization{
			Selection: domain.DesignSelection{
				Single: &domain.SingleDesign{
					Dimensions: dims,
					Styles:     domain.StyleSelections{Coverage: option("full", 300)},
				},
			},
		},
	}

	// Default: legacy path charges styles only, even with known dimensions.
	engine := NewEngine(EngineDeps{})
	if got := engine.UnitPrice(item, testCatalog()); got != 2300 {
		t.Fatalf("expected legacy path without material cost, got %d", got)
	}

	// Flag flips the legacy path to match the multi-design behaviour.
	engine = NewEngine(EngineDeps{LegacySingleDesignMaterialCost: true})
	want := 2300 + MaterialCostFor(dims).Total()
	if got := engine.UnitPrice(item, testCatalog()); got != want {
		t.Fatalf("expected %d with flag on, got %d", want, got)
	}
}

func TestUnitPriceIdempotent(t *testing.T) {
	engine := NewEngine(EngineDeps{})
	item := domain.CartItem{
		ProductID: "7",
		Quantity:  2,
		Customization: &domain.Customization{
			Selection: domain.DesignSelection{
				Multiple: []domain.DesignSpec{
					{
						Dimensions: domain.Dimensions{Width: 2.5, Height: 2.5},
						Styles:     domain.StyleSelections{Upgrades: []domain.StyleOption{{ID: "glow", PriceCents: 175}}},
					},
				},
			},
		},
	}

	catalog := testCatalog()
	first := engine.UnitPrice(item, catalog)
	second := engine.UnitPrice(item, catalog)
	if first != second {
		t.Fatalf("expected idempotent pricing, got %d then %d", first, second)
	}
}

func TestSubtotalAndTax(t *testing.T) {
	engine := NewEngine(EngineDeps{})
	items := []domain.CartItem{
		{ProductID: "5", Quantity: 2},
		{ProductID: "missing", Quantity: 3},
	}

	subtotal := engine.Subtotal(items, testCatalog())
	if subtotal != 4000 {
		t.Fatalf("expected subtotal 4000, got %d", subtotal)
	}
	if tax := Tax(subtotal, 800); tax != 320 {
		t.Fatalf("expected 8%% tax of 320, got %d", tax)
	}
	if tax := Tax(0, 800); tax != 0 {
		t.Fatalf("expected zero tax on empty subtotal, got %d", tax)
	}
}

func TestMaterialCostUnknownDimensionsIsZero(t *testing.T) {
	if total := MaterialCostFor(domain.Dimensions{Width: 0, Height: 5}).Total(); total != 0 {
		t.Fatalf("expected zero material cost, got %d", total)
	}
}
