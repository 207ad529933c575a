package domain

// PricingBreakdown captures the monetary components of a single cart line's
// unit price. All amounts are minor units (cents). Derived per computation and
// never persisted.
type PricingBreakdown struct {
	ProductID ProductID
	Base      int64
	Styles    int64
	Material  int64
	Unit      int64
	Designs   []DesignPricingBreakdown
}

// DesignPricingBreakdown records the contribution of one design in a
// multi-design customization.
type DesignPricingBreakdown struct {
	Placement Placement
	Styles    int64
	Material  int64
}

// CartEstimate aggregates cart-level totals shown at checkout.
type CartEstimate struct {
	Currency string `json:"currency"`
	Subtotal int64  `json:"subtotalCents"`
	Tax      int64  `json:"taxCents"`
	Shipping int64  `json:"shippingCents"`
	Total    int64  `json:"totalCents"`
}
