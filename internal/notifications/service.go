package notifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/molimor/molimor-backend/pkg/db"
	"github.com/molimor/molimor-backend/pkg/db/models"
	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
)

// Service records and serves admin "new order" notifications.
type Service interface {
	Record(ctx context.Context, orderID uuid.UUID) (*models.OrderNotification, error)
	ListPending(ctx context.Context) ([]PendingItemDTO, error)
	DeleteMany(ctx context.Context, ids []uuid.UUID) (*DeleteResultDTO, error)
}

// ProductLookup resolves catalog products by id.
type ProductLookup interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type service struct {
	repo     Repository
	products ProductLookup
}

// NewService wires notifications dependencies.
func NewService(repo Repository, products ProductLookup) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "product lookup required")
	}
	return &service{repo: repo, products: products}, nil
}

// Record creates the notification for orderID. A second call for the same
// order returns the existing row so redelivered fulfillment runs stay
// single-notification.
func (s *service) Record(ctx context.Context, orderID uuid.UUID) (*models.OrderNotification, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	n := &models.OrderNotification{OrderID: orderID}
	err := s.repo.Create(ctx, n)
	if err == nil {
		return n, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order notification")
	}
	existing, findErr := s.repo.FindByOrderID(ctx, orderID)
	if findErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "load existing order notification")
	}
	return existing, nil
}

func (s *service) ListPending(ctx context.Context) ([]PendingItemDTO, error) {
	rows, err := s.repo.ListUnacknowledged(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list order notifications")
	}

	seen := map[uuid.UUID]struct{}{}
	var productIDs []uuid.UUID
	for _, n := range rows {
		if n.Order == nil {
			continue
		}
		for _, id := range n.Order.Items.ProductIDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			productIDs = append(productIDs, id)
		}
	}

	catalog, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load notification products")
	}
	byID := make(map[uuid.UUID]models.Product, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p
	}

	out := make([]PendingItemDTO, 0, len(rows))
	for _, n := range rows {
		if n.Order == nil {
			continue
		}
		for _, item := range n.Order.Items {
			product, ok := byID[item.ProductID]
			if !ok {
				continue
			}
			out = append(out, PendingItemDTO{
				NotificationID: n.ID,
				OrderID:        n.Order.OrderID(),
				ProductID:      product.ID,
				Title:          product.Title,
				SKU:            product.SKU,
				Image:          product.Image,
				CreatedAt:      n.CreatedAt,
			})
		}
	}
	return out, nil
}

func (s *service) DeleteMany(ctx context.Context, ids []uuid.UUID) (*DeleteResultDTO, error) {
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notificationIds must contain at least one id")
	}
	for _, id := range ids {
		if id == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "notificationIds must not contain empty ids")
		}
	}
	deleted, err := s.repo.DeleteByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete order notifications")
	}
	return &DeleteResultDTO{DeletedCount: deleted}, nil
}
