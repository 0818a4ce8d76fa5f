package orders

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/internal/users"
	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db"
	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/outbox"
	"github.com/molimor/molimor-backend/pkg/outbox/payloads"
	"github.com/molimor/molimor-backend/pkg/pagination"
)

const (
	orderNumberConstraint = "orders_order_number_key"

	// currencyScale matches numeric(12,2) on orders.
	currencyScale = 2
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Scheduler starts background fulfillment for a committed order. It must not
// block on the fulfillment work itself.
type Scheduler interface {
	Schedule(ctx context.Context, order models.Order)
}

// Caller identifies who is making a request.
type Caller struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (c Caller) isAdmin() bool {
	return c.Role == enums.UserRoleAdmin
}

// Service defines order placement and read operations.
type Service interface {
	PlaceOrder(ctx context.Context, caller Caller, input PlaceOrderInput) (*OrderDTO, error)
	ListMine(ctx context.Context, caller Caller) ([]OrderDTO, error)
	Get(ctx context.Context, caller Caller, orderID string) (*OrderDetailDTO, error)
	AdminList(ctx context.Context, filters AdminListFilters) (*AdminOrderList, error)
	LoadByOrderID(ctx context.Context, orderID string) (*models.Order, error)
}

// ServiceParams groups the service collaborators.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Users     userLookup
	Outbox    outbox.Emitter
	Scheduler Scheduler
	Config    config.FulfillmentConfig
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	users     userLookup
	outbox    outbox.Emitter
	scheduler Scheduler
	allocator *Allocator
	cfg       config.FulfillmentConfig
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the orders service. Outbox mode needs an emitter, inline
// mode needs a scheduler.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if p.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if p.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user lookup required")
	}
	if p.Config.IsOutbox() && p.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required in outbox mode")
	}
	if !p.Config.IsOutbox() && p.Scheduler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "fulfillment scheduler required in inline mode")
	}
	if p.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      p.Repo,
		tx:        p.Tx,
		users:     p.Users,
		outbox:    p.Outbox,
		scheduler: p.Scheduler,
		allocator: NewAllocator(p.Repo),
		cfg:       p.Config,
		logg:      p.Logger,
		now:       now,
	}, nil
}

// PlaceOrder allocates an order number, commits the order and hands it to
// fulfillment. Nothing downstream runs unless the insert commits.
func (s *service) PlaceOrder(ctx context.Context, caller Caller, input PlaceOrderInput) (*OrderDTO, error) {
	if caller.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := validatePlaceOrder(input); err != nil {
		return nil, err
	}

	draft := buildOrder(caller.UserID, input)
	ctx = s.logg.WithUserID(ctx, caller.UserID.String())

	var created *models.Order
	for attempt := 0; ; attempt++ {
		order := draft
		number, err := s.allocator.Next(ctx)
		if err != nil {
			return nil, err
		}
		order.OrderNumber = number

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).Create(ctx, &order); err != nil {
				return err
			}
			if !s.cfg.IsOutbox() {
				return nil
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderPlaced,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{UserID: caller.UserID, Role: string(caller.Role)},
				Data: payloads.OrderPlacedEvent{
					OrderID:     order.ID,
					OrderNumber: order.OrderNumber,
					UserID:      order.UserID,
				},
				Version: 1,
			})
		})
		if err == nil {
			created = &order
			break
		}
		if !isOrderNumberConflict(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
		if attempt >= s.cfg.AllocationRetries {
			return nil, pkgerrors.Wrap(pkgerrors.CodeOrderIDConflict, err, "order number already allocated").
				WithDetails(map[string]any{"orderId": strconv.FormatInt(number, 10)})
		}
		s.logg.Warn(s.logg.WithOrderID(ctx, strconv.FormatInt(number, 10)), "order number conflict, reallocating")
	}

	ctx = s.logg.WithOrderID(ctx, created.OrderID())
	if s.cfg.IsOutbox() {
		s.logg.Info(ctx, "order placed, fulfillment queued to outbox")
	} else {
		s.scheduler.Schedule(ctx, *created)
		s.logg.Info(ctx, "order placed, fulfillment scheduled")
	}

	dto := toOrderDTO(*created)
	return &dto, nil
}

func (s *service) ListMine(ctx context.Context, caller Caller) ([]OrderDTO, error) {
	if caller.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListByUser(ctx, caller.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return toOrderDTOs(rows), nil
}

// Get returns one order. Callers other than the owner or an admin get
// NOT_FOUND so order numbers cannot be probed.
func (s *service) Get(ctx context.Context, caller Caller, orderID string) (*OrderDetailDTO, error) {
	if caller.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.LoadByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID && !caller.isAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	detail := &OrderDetailDTO{OrderDTO: toOrderDTO(*order)}
	buyer, err := s.users.FindByID(ctx, order.UserID)
	switch {
	case err == nil:
		detail.User = users.FromModel(buyer)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order buyer")
	}
	return detail, nil
}

// LoadByOrderID resolves the human-facing order id.
func (s *service) LoadByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	number, err := strconv.ParseInt(strings.TrimSpace(orderID), 10, 64)
	if err != nil || number <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId must be numeric").
			WithDetails(map[string]any{"orderId": orderID})
	}
	order, err := s.repo.FindByOrderNumber(ctx, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func (s *service) AdminList(ctx context.Context, filters AdminListFilters) (*AdminOrderList, error) {
	page := pagination.Page{Page: filters.Page, Limit: filters.Limit}.Normalize()
	if filters.StartDate != nil && filters.EndDate != nil && filters.EndDate.Before(*filters.StartDate) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "endDate must not be before startDate")
	}
	rows, total, err := s.repo.ListAdmin(ctx, filters, page.Limit, page.Offset())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list admin orders")
	}
	return &AdminOrderList{Orders: toOrderDTOs(rows), Meta: page.Meta(total)}, nil
}

func isOrderNumberConflict(err error) bool {
	return db.IsUniqueViolation(err, orderNumberConstraint) ||
		db.IsUniqueViolation(err, "orders.order_number")
}

func validatePlaceOrder(input PlaceOrderInput) error {
	details := map[string]string{}
	if len(input.CartItems) == 0 {
		details["cartItems"] = "must contain at least one item"
	}
	for i, item := range input.CartItems {
		field := "cartItems[" + strconv.Itoa(i) + "]"
		if item.ProductID == uuid.Nil {
			details[field+".productId"] = "is required"
		}
		if item.Quantity < 1 {
			details[field+".quantity"] = "must be at least 1"
		}
		if msg := moneyProblem(item.Price); msg != "" {
			details[field+".price"] = msg
		}
	}
	if msg := moneyProblem(input.ShippingCharge); msg != "" {
		details["shippingCharge"] = msg
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return nil
}

// moneyProblem rejects negative amounts and anything finer than a paisa.
func moneyProblem(d decimal.Decimal) string {
	switch {
	case d.IsNegative():
		return "must not be negative"
	case !d.Equal(d.Truncate(currencyScale)):
		return "must have at most 2 decimal places"
	}
	return ""
}

// buildOrder snapshots the request. Omitted shipping fields fall back to billing.
func buildOrder(userID uuid.UUID, input PlaceOrderInput) models.Order {
	items := make(models.OrderItems, 0, len(input.CartItems))
	for _, item := range input.CartItems {
		items = append(items, models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.Truncate(currencyScale),
		})
	}
	return models.Order{
		UserID:          userID,
		FName:           strings.TrimSpace(input.FName),
		LName:           strings.TrimSpace(input.LName),
		Items:           items,
		CouponID:        input.CouponID,
		PaymentMethod:   input.PaymentMethod,
		StreetAddress:   input.StreetAddress,
		Country:         input.Country,
		State:           input.State,
		City:            input.City,
		Pincode:         input.Pincode,
		ShippingAddress: orDefault(input.ShippingAddress, input.StreetAddress),
		ShippingCountry: orDefault(input.ShippingCountry, input.Country),
		ShippingState:   orDefault(input.ShippingState, input.State),
		ShippingCity:    orDefault(input.ShippingCity, input.City),
		ShippingPincode: orDefault(input.ShippingPincode, input.Pincode),
		ShippingCharge:  input.ShippingCharge.Truncate(currencyScale),
		Mobile:          input.Mobile,
		Email:           strings.TrimSpace(input.Email),
		TotalAmount:     items.Total(),
		OrderNote:       input.OrderNote,
		Status:          enums.OrderStatusProcessing,
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
