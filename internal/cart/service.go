package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/repositories"
)

var (
	// ErrItemNotFound is returned when the cart line does not exist.
	ErrItemNotFound = errors.New("cart: item not found")
	// ErrInvalidQuantity is returned for a non-positive quantity.
	ErrInvalidQuantity = errors.New("cart: quantity must be positive")
	// ErrInvalidCustomization is returned when a customization violates the
	// one-branch design invariant.
	ErrInvalidCustomization = errors.New("cart: invalid customization")
	// ErrProductUnavailable is returned for unknown or inactive products.
	ErrProductUnavailable = errors.New("cart: product unavailable")
)

// Repository persists carts keyed by user.
type Repository interface {
	Get(ctx context.Context, userID string) (domain.Cart, bool, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

// AddItemInput is the payload for adding a line to the cart.
type AddItemInput struct {
	ProductID     domain.ProductID
	Quantity      int
	Customization *domain.Customization
}

// ServiceDeps configures the cart Service.
type ServiceDeps struct {
	Repo     Repository
	Products repositories.ProductRepository
	Currency string
	Clock    func() time.Time
	IDGen    func() string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Service owns cart mutation rules. Uncustomized lines for the same product
// merge quantities; customized lines are always kept separate because every
// customization is its own piece of work.
type Service struct {
	repo     Repository
	products repositories.ProductRepository
	currency string
	clock    func() time.Time
	idGen    func() string
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewService constructs a cart Service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Repo == nil {
		return nil, errors.New("cart: repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart: product repository is required")
	}
	currency := deps.Currency
	if currency == "" {
		currency = "USD"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Service{
		repo:     deps.Repo,
		products: deps.Products,
		currency: currency,
		clock:    func() time.Time { return clock().UTC() },
		idGen:    idGen,
		logger:   logger,
	}, nil
}

// Get loads the user's cart, returning an empty cart when none exists.
func (s *Service) Get(ctx context.Context, userID string) (domain.Cart, error) {
	cart, found, err := s.repo.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("cart: load: %w", err)
	}
	if !found {
		return domain.Cart{UserID: userID, Currency: s.currency}, nil
	}
	return cart, nil
}

// AddItem appends or merges a line per the merge invariant.
func (s *Service) AddItem(ctx context.Context, userID string, input AddItemInput) (domain.Cart, error) {
	if input.Quantity <= 0 {
		return domain.Cart{}, ErrInvalidQuantity
	}
	if input.Customization != nil && !input.Customization.Selection.Valid() {
		return domain.Cart{}, fmt.Errorf("%w: exactly one design branch must be set", ErrInvalidCustomization)
	}

	product, err := s.products.GetByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.Cart{}, fmt.Errorf("%w: %s", ErrProductUnavailable, input.ProductID)
		}
		return domain.Cart{}, fmt.Errorf("cart: lookup product: %w", err)
	}
	if !product.Active {
		return domain.Cart{}, fmt.Errorf("%w: %s", ErrProductUnavailable, input.ProductID)
	}

	cart, err := s.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	now := s.clock()

	if input.Customization == nil {
		for i := range cart.Items {
			item := &cart.Items[i]
			if item.ProductID == input.ProductID && !item.Customized() {
				item.Quantity += input.Quantity
				cart.UpdatedAt = now
				if err := s.repo.Save(ctx, cart); err != nil {
					return domain.Cart{}, fmt.Errorf("cart: save: %w", err)
				}
				s.logger(ctx, "cart.item.merged", map[string]any{
					"userId":    userID,
					"productId": input.ProductID.String(),
					"quantity":  item.Quantity,
				})
				return cart, nil
			}
		}
	}

	cart.Items = append(cart.Items, domain.CartItem{
		ID:            s.idGen(),
		ProductID:     input.ProductID,
		Quantity:      input.Quantity,
		Customization: input.Customization,
		AddedAt:       now,
	})
	cart.UpdatedAt = now
	if err := s.repo.Save(ctx, cart); err != nil {
		return domain.Cart{}, fmt.Errorf("cart: save: %w", err)
	}
	s.logger(ctx, "cart.item.added", map[string]any{
		"userId":     userID,
		"productId":  input.ProductID.String(),
		"customized": input.Customization != nil,
	})
	return cart, nil
}

// UpdateQuantity changes the quantity of one line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return domain.Cart{}, ErrInvalidQuantity
	}
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	item := findItem(&cart, itemID)
	if item == nil {
		return domain.Cart{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	item.Quantity = quantity
	cart.UpdatedAt = s.clock()
	if err := s.repo.Save(ctx, cart); err != nil {
		return domain.Cart{}, fmt.Errorf("cart: save: %w", err)
	}
	return cart, nil
}

// ChangePlacement moves one design of a customized line to a new placement.
// Non-manual placements snap the position to the placement's coordinate;
// manual keeps whatever position the shopper dragged the design to.
func (s *Service) ChangePlacement(ctx context.Context, userID, itemID string, designIndex int, placement domain.Placement) (domain.Cart, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	item := findItem(&cart, itemID)
	if item == nil {
		return domain.Cart{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if item.Customization == nil || !item.Customization.Selection.IsMulti() {
		return domain.Cart{}, fmt.Errorf("%w: line has no positioned designs", ErrInvalidCustomization)
	}
	designs := item.Customization.Selection.Multiple
	if designIndex < 0 || designIndex >= len(designs) {
		return domain.Cart{}, fmt.Errorf("%w: design index %d out of range", ErrInvalidCustomization, designIndex)
	}

	design := &designs[designIndex]
	design.Placement = placement
	design.Position = domain.PositionFor(placement, design.Position)

	cart.UpdatedAt = s.clock()
	if err := s.repo.Save(ctx, cart); err != nil {
		return domain.Cart{}, fmt.Errorf("cart: save: %w", err)
	}
	return cart, nil
}

// RemoveItem deletes one line.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (domain.Cart, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	kept := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if item.ID == itemID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return domain.Cart{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	cart.Items = kept
	cart.UpdatedAt = s.clock()
	if err := s.repo.Save(ctx, cart); err != nil {
		return domain.Cart{}, fmt.Errorf("cart: save: %w", err)
	}
	return cart, nil
}

// Clear wipes the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("cart: clear: %w", err)
	}
	s.logger(ctx, "cart.cleared", map[string]any{"userId": userID})
	return nil
}

func findItem(cart *domain.Cart, itemID string) *domain.CartItem {
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			return &cart.Items[i]
		}
	}
	return nil
}
