package fulfillment

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/invoicepdf"
	"github.com/molimor/molimor-backend/pkg/mailer"
	"github.com/molimor/molimor-backend/pkg/push"
)

type fakeNotifications struct {
	mu       sync.Mutex
	recorded []uuid.UUID
	err      error
}

func (f *fakeNotifications) Record(_ context.Context, orderID uuid.UUID) (*models.OrderNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.recorded = append(f.recorded, orderID)
	return &models.OrderNotification{ID: uuid.New(), OrderID: orderID}, nil
}

type fakeUsers struct {
	findByID   func(ctx context.Context, id uuid.UUID) (*models.User, error)
	listTokens func(ctx context.Context) ([]string, error)
}

func (f *fakeUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return f.findByID(ctx, id)
}

func (f *fakeUsers) ListAdminDeviceTokens(ctx context.Context) ([]string, error) {
	if f.listTokens == nil {
		return nil, nil
	}
	return f.listTokens(ctx)
}

type fakeProducts struct {
	findByIDs func(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

func (f *fakeProducts) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	return f.findByIDs(ctx, ids)
}

type fakeCart struct {
	mu     sync.Mutex
	calls  [][]uuid.UUID
	userID uuid.UUID
	err    error
}

func (f *fakeCart) RemoveItems(_ context.Context, userID uuid.UUID, productIDs []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userID = userID
	f.calls = append(f.calls, productIDs)
	return int64(len(productIDs)), f.err
}

type fakeRenderer struct {
	render func(ctx context.Context, inv invoicepdf.Invoice) ([]byte, error)
}

func (f *fakeRenderer) Render(ctx context.Context, inv invoicepdf.Invoice) ([]byte, error) {
	return f.render(ctx, inv)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

type fakePush struct {
	mu     sync.Mutex
	calls  int
	tokens []string
	last   push.Notification
	send   func(ctx context.Context, tokens []string, n push.Notification) (push.Result, error)
}

func (f *fakePush) Send(ctx context.Context, tokens []string, n push.Notification) (push.Result, error) {
	f.mu.Lock()
	f.calls++
	f.tokens = tokens
	f.last = n
	f.mu.Unlock()
	if f.send != nil {
		return f.send(ctx, tokens, n)
	}
	return push.Result{Sent: len(tokens)}, nil
}
