package repositories

import (
	"context"
	"errors"

	"github.com/patchline/api/internal/domain"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("repositories: not found")

// ErrDuplicate is returned when a uniqueness constraint rejects a write.
var ErrDuplicate = errors.New("repositories: duplicate")

// ProductRepository reads the catalog.
type ProductRepository interface {
	List(ctx context.Context, activeOnly bool) ([]domain.Product, error)
	GetByID(ctx context.Context, id domain.ProductID) (domain.Product, error)
}

// UserRepository stores accounts and their credential hashes.
type UserRepository interface {
	Create(ctx context.Context, user domain.User, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (domain.User, string, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
}

// OrderRepository persists placed orders for the back office.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context, offset, limit int) ([]domain.Order, int, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
}
