package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/platform/pagination"
	"github.com/patchline/api/internal/repositories"
)

// ErrInvalidStatus is returned for an unknown lifecycle status.
var ErrInvalidStatus = errors.New("orders: invalid status")

// ErrNotFound is returned when the order does not exist.
var ErrNotFound = errors.New("orders: not found")

// Page is one page of the admin order listing.
type Page struct {
	Orders        []domain.Order
	TotalCount    int
	NextPageToken string
}

// ServiceDeps configures the orders Service.
type ServiceDeps struct {
	Repo   repositories.OrderRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// Service is the back-office view over placed orders.
type Service struct {
	repo   repositories.OrderRepository
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewService constructs an orders Service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Repo == nil {
		return nil, errors.New("orders: repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Service{repo: deps.Repo, logger: logger}, nil
}

// Record persists a freshly placed order.
func (s *Service) Record(ctx context.Context, order domain.Order) error {
	if err := s.repo.Create(ctx, order); err != nil {
		return fmt.Errorf("orders: record: %w", err)
	}
	s.logger(ctx, "orders.recorded", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
	})
	return nil
}

// Get fetches one order.
func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return domain.Order{}, fmt.Errorf("orders: get: %w", err)
	}
	return order, nil
}

// List returns one page of all orders for the back office, newest first.
func (s *Service) List(ctx context.Context, params pagination.Params) (Page, error) {
	orders, total, err := s.repo.List(ctx, params.Cursor.Offset, params.PageSize)
	if err != nil {
		return Page{}, fmt.Errorf("orders: list: %w", err)
	}
	token, err := pagination.NextToken(params, len(orders))
	if err != nil {
		return Page{}, err
	}
	return Page{Orders: orders, TotalCount: total, NextPageToken: token}, nil
}

// ListByUser returns one page of a shopper's own orders.
func (s *Service) ListByUser(ctx context.Context, userID string, params pagination.Params) ([]domain.Order, string, error) {
	orders, err := s.repo.ListByUser(ctx, userID, params.Cursor.Offset, params.PageSize)
	if err != nil {
		return nil, "", fmt.Errorf("orders: list by user: %w", err)
	}
	token, err := pagination.NextToken(params, len(orders))
	if err != nil {
		return nil, "", err
	}
	return orders, token, nil
}

// UpdateStatus transitions an order's lifecycle state.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	if !domain.ValidOrderStatus(status) {
		return domain.Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return domain.Order{}, fmt.Errorf("orders: update status: %w", err)
	}
	s.logger(ctx, "orders.status.updated", map[string]any{
		"orderId": id,
		"status":  string(status),
	})
	return s.Get(ctx, id)
}
