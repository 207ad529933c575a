package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ProductID is the canonical product identifier. Upstream payloads carry it
// either as a JSON string or a JSON number; normalisation happens exactly once
// here so lookups never re-coerce.
type ProductID string

// ParseProductID normalises a raw identifier into its canonical form.
func ParseProductID(raw string) ProductID {
	return ProductID(strings.TrimSpace(raw))
}

// UnmarshalJSON accepts both string and numeric representations.
func (p *ProductID) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*p = ParseProductID(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err != nil {
		return err
	}
	*p = ProductID(asNumber.String())
	return nil
}

// String returns the canonical identifier text.
func (p ProductID) String() string { return string(p) }

// IsZero reports whether the identifier is empty.
func (p ProductID) IsZero() bool { return strings.TrimSpace(string(p)) == "" }

// ProductIDFromInt builds a canonical identifier from a numeric id.
func ProductIDFromInt(id int64) ProductID {
	return ProductID(strconv.FormatInt(id, 10))
}

// Role identifies which kind of account a user holds.
type Role string

const (
	// RoleCustomer is a storefront shopper account.
	RoleCustomer Role = "customer"
	// RoleEmployee is a back-office (admin/seller/staff) account.
	RoleEmployee Role = "employee"
)

// ParseRole maps free-form role text onto the two account kinds, treating any
// back-office variant (admin, seller, staff) as employee.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "employee", "admin", "seller", "staff":
		return RoleEmployee
	default:
		return RoleCustomer
	}
}

// User is the account snapshot shared across layers.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Verified  bool      `json:"verified"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Product is a catalog entry. Prices are minor units (cents).
type Product struct {
	ID          ProductID `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"priceCents"`
	WeightOz    float64   `json:"weightOz,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// StyleOption is a single selectable customization choice with its surcharge.
type StyleOption struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"priceCents"`
}

// StyleSelections partitions the chosen embroidery styles into single-select
// categories (at most one each) and multi-select categories (any number).
type StyleSelections struct {
	Coverage *StyleOption  `json:"coverage,omitempty"`
	Material *StyleOption  `json:"material,omitempty"`
	Border   *StyleOption  `json:"border,omitempty"`
	Backing  *StyleOption  `json:"backing,omitempty"`
	Cutting  *StyleOption  `json:"cutting,omitempty"`
	Threads  []StyleOption `json:"threads,omitempty"`
	Upgrades []StyleOption `json:"upgrades,omitempty"`
}

// SingleSelect returns the populated single-select options.
func (s StyleSelections) SingleSelect() []*StyleOption {
	return []*StyleOption{s.Coverage, s.Material, s.Border, s.Backing, s.Cutting}
}

// Dimensions holds a patch size in inches.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Known reports whether both dimensions carry usable values.
func (d Dimensions) Known() bool { return d.Width > 0 && d.Height > 0 }

// Position is a pixel offset on the garment preview.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DesignArtwork describes the uploaded artwork attached to a customization.
type DesignArtwork struct {
	Name       string `json:"name"`
	SizeBytes  int64  `json:"sizeBytes"`
	PreviewURL string `json:"previewUrl,omitempty"`
	RawData    string `json:"rawData,omitempty"`
}

// DesignSpec is one design entry in a multi-design customization.
type DesignSpec struct {
	Artwork    DesignArtwork   `json:"artwork"`
	Dimensions Dimensions      `json:"dimensions"`
	Placement  Placement       `json:"placement"`
	Position   Position        `json:"position"`
	Scale      float64         `json:"scale,omitempty"`
	Rotation   float64         `json:"rotation,omitempty"`
	Styles     StyleSelections `json:"styles"`
}

// SingleDesign is the legacy one-design customization shape.
type SingleDesign struct {
	Artwork    DesignArtwork   `json:"artwork"`
	Dimensions Dimensions      `json:"dimensions"`
	Styles     StyleSelections `json:"styles"`
}

// DesignSelection is the tagged union over the two customization shapes.
// Exactly one branch is populated at a time.
type DesignSelection struct {
	Single   *SingleDesign `json:"single,omitempty"`
	Multiple []DesignSpec  `json:"multiple,omitempty"`
}

// IsMulti reports whether the multi-design branch is active.
func (d DesignSelection) IsMulti() bool { return len(d.Multiple) > 0 }

// Valid enforces the exactly-one-branch invariant.
func (d DesignSelection) Valid() bool {
	hasSingle := d.Single != nil
	hasMulti := len(d.Multiple) > 0
	return hasSingle != hasMulti
}

// PatchSize enumerates the offered patch size tiers.
type PatchSize string

const (
	PatchSizeSmall  PatchSize = "small"
	PatchSizeMedium PatchSize = "medium"
	PatchSizeLarge  PatchSize = "large"
	PatchSizeCustom PatchSize = "custom"
)

// ReviewStatus tracks whether staff have reviewed a customization.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// EmbroideryData carries derived pricing outputs stored alongside the
// customization for display; the pricing engine is the source of truth.
type EmbroideryData struct {
	MaterialCostCents int64        `json:"materialCostCents"`
	OptionsPriceCents int64        `json:"optionsPriceCents"`
	TotalPriceCents   int64        `json:"totalPriceCents"`
	ReviewStatus      ReviewStatus `json:"reviewStatus,omitempty"`
}

// Customization is the full set of embroidery choices attached to a cart item.
// It is immutable once attached; re-customizing yields a new cart entry.
type Customization struct {
	Selection  DesignSelection `json:"selection"`
	Size       PatchSize       `json:"size,omitempty"`
	Color      string          `json:"color,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	Embroidery *EmbroideryData `json:"embroidery,omitempty"`
}

// CartItem is one line in a shopper's cart.
type CartItem struct {
	ID            string         `json:"id"`
	ProductID     ProductID      `json:"productId"`
	Quantity      int            `json:"quantity"`
	Customization *Customization `json:"customization,omitempty"`
	AddedAt       time.Time      `json:"addedAt"`
}

// Customized reports whether the line carries embroidery choices.
func (i CartItem) Customized() bool { return i.Customization != nil }

// Cart aggregates a user's pending line items.
type Cart struct {
	UserID    string     `json:"userId"`
	Currency  string     `json:"currency"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Address is a shipping or billing destination.
type Address struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// ShippingRate is one carrier quote. Costs are minor units (cents).
type ShippingRate struct {
	ServiceName           string `json:"serviceName"`
	ServiceCode           string `json:"serviceCode"`
	Carrier               string `json:"carrier"`
	ShipmentCostCents     int64  `json:"shipmentCostCents"`
	OtherCostCents        int64  `json:"otherCostCents"`
	TotalCostCents        int64  `json:"totalCostCents"`
	EstimatedDeliveryDays int    `json:"estimatedDeliveryDays"`
	Recommended           bool   `json:"recommended"`
}

// OrderStatus tracks the order lifecycle in the back office.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ValidOrderStatus reports whether the supplied status is a known lifecycle state.
func ValidOrderStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusPending, OrderStatusPaid, OrderStatusInProgress,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderItem is a priced line captured at order time.
type OrderItem struct {
	ProductID      ProductID      `json:"productId"`
	Name           string         `json:"name"`
	Quantity       int            `json:"quantity"`
	UnitPriceCents int64          `json:"unitPriceCents"`
	Customization  *Customization `json:"customization,omitempty"`
}

// PaymentSnapshot records the normalised payment outcome on the order.
type PaymentSnapshot struct {
	Method    string `json:"method"`
	PaymentID string `json:"paymentId"`
	PayerName string `json:"payerName,omitempty"`
}

// ShippingSnapshot records the destination and selected rate on the order.
type ShippingSnapshot struct {
	Address Address       `json:"address"`
	Rate    *ShippingRate `json:"rate,omitempty"`
}

// Order is the locally synthesized order record; authoritative state lives in
// the back office once the row is persisted.
type Order struct {
	ID          string           `json:"id"`
	OrderNumber string           `json:"orderNumber"`
	UserID      string           `json:"userId"`
	Currency    string           `json:"currency"`
	Items       []OrderItem      `json:"items"`
	Subtotal    int64            `json:"subtotalCents"`
	Tax         int64            `json:"taxCents"`
	Shipping    int64            `json:"shippingCents"`
	Total       int64            `json:"totalCents"`
	Status      OrderStatus      `json:"status"`
	Payment     PaymentSnapshot  `json:"payment"`
	Shipment    ShippingSnapshot `json:"shipment"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}
