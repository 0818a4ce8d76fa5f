package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/internal/invoice"
	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/invoicepdf"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/mailer"
	"github.com/molimor/molimor-backend/pkg/metrics"
	"github.com/molimor/molimor-backend/pkg/push"
)

type pipelineFixture struct {
	order         models.Order
	buyer         *models.User
	notifications *fakeNotifications
	users         *fakeUsers
	products      *fakeProducts
	cart          *fakeCart
	renderer      *fakeRenderer
	mailer        *fakeMailer
	push          *fakePush
	registry      *prometheus.Registry
}

func newPipelineFixture() *pipelineFixture {
	turmeric := models.Product{ID: uuid.New(), Title: "Turmeric", SKU: "TUR-1", HSNCode: "0910", GST: "18%"}
	buyer := &models.User{ID: uuid.New(), FName: "Asha", LName: "Rao", Email: "asha.account@example.com"}
	items := models.OrderItems{{ProductID: turmeric.ID, Quantity: 2, Price: decimal.NewFromInt(100)}}
	order := models.Order{
		ID:          uuid.New(),
		OrderNumber: 500002,
		UserID:      buyer.ID,
		FName:       "Asha",
		LName:       "Rao",
		Items:       items,
		Email:       "asha.order@example.com",
		TotalAmount: items.Total(),
	}

	f := &pipelineFixture{
		order:         order,
		buyer:         buyer,
		notifications: &fakeNotifications{},
		cart:          &fakeCart{},
		mailer:        &fakeMailer{},
		push:          &fakePush{},
		registry:      prometheus.NewRegistry(),
	}
	f.users = &fakeUsers{
		findByID: func(context.Context, uuid.UUID) (*models.User, error) { return buyer, nil },
		listTokens: func(context.Context) ([]string, error) {
			return []string{"admin-token-1", "admin-token-2"}, nil
		},
	}
	f.products = &fakeProducts{findByIDs: func(context.Context, []uuid.UUID) ([]models.Product, error) {
		return []models.Product{turmeric}, nil
	}}
	f.renderer = &fakeRenderer{render: func(_ context.Context, inv invoicepdf.Invoice) ([]byte, error) {
		return []byte("%PDF-" + inv.OrderID), nil
	}}
	return f
}

func (f *pipelineFixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline(Dependencies{
		Notifications: f.notifications,
		Users:         f.users,
		Products:      f.products,
		Cart:          f.cart,
		Renderer:      f.renderer,
		Mailer:        f.mailer,
		Push:          f.push,
		Metrics:       metrics.NewFulfillmentMetrics(f.registry),
		Logger:        logger.Nop(),
		Config:        config.FulfillmentConfig{StepTimeout: time.Second, InvoiceSubject: "Molimor Purchase Invoice"},
		BaseURL:       "https://molimor.example",
		Now:           func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return p
}

func TestRunCompletesEveryStep(t *testing.T) {
	f := newPipelineFixture()
	report := f.pipeline(t).Run(context.Background(), f.order)

	require.NoError(t, report.Err())
	assert.Equal(t, StateDone, report.State())
	assert.Equal(t, []uuid.UUID{f.order.ID}, f.notifications.recorded)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, mailer.TemplateBillingInvoice, msg.Template)
	assert.Equal(t, "Molimor Purchase Invoice", msg.Subject)
	assert.Equal(t, "asha.account@example.com", msg.To)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "invoice-500002.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, []byte("%PDF-500002"), msg.Attachments[0].Content)

	assert.Equal(t, []string{"admin-token-1", "admin-token-2"}, f.push.tokens)
	assert.Equal(t, "🛒 New Order Placed!", f.push.last.Title)
	assert.Equal(t, "Order #500002 by Asha Rao for ₹200", f.push.last.Body)
	assert.Equal(t, map[string]string{"orderId": "500002", "type": "order_placed"}, f.push.last.Data)

	require.Len(t, f.cart.calls, 1)
	assert.Equal(t, f.order.UserID, f.cart.userID)
	assert.Equal(t, f.order.Items.ProductIDs(), f.cart.calls[0])

	assert.Equal(t, 1.0, counterValue(t, f.registry, "molimor_fulfillment_step_total", map[string]string{"step": "email", "result": metrics.ResultSuccess}))
}

func TestRunInvoiceTotalsReachEmail(t *testing.T) {
	f := newPipelineFixture()
	f.pipeline(t).Run(context.Background(), f.order)

	require.Len(t, f.mailer.sent, 1)
	doc, ok := f.mailer.sent[0].Data.(invoice.Document)
	require.True(t, ok)
	assert.True(t, doc.SubTotal.Equal(decimal.NewFromInt(236)), doc.SubTotal.String())
	assert.True(t, doc.TotalTax.Equal(decimal.NewFromInt(36)), doc.TotalTax.String())
	assert.Equal(t, "2026-03-01", doc.InvoiceDate)
	assert.Equal(t, "https://molimor.example", doc.BaseURL)
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, "Turmeric", doc.Lines[0].Name)
}

func TestRenderFailureDoesNotBlockOtherSteps(t *testing.T) {
	f := newPipelineFixture()
	f.renderer.render = func(context.Context, invoicepdf.Invoice) ([]byte, error) {
		return nil, errors.New("renderer crashed")
	}

	report := f.pipeline(t).Run(context.Background(), f.order)

	require.Error(t, report.Err())
	assert.True(t, report.Failed(enums.StepInvoicePDF))
	assert.Equal(t, metrics.ResultSuccess, report.Result(enums.StepEmail))
	assert.Equal(t, metrics.ResultSuccess, report.Result(enums.StepPush))
	assert.Equal(t, metrics.ResultSuccess, report.Result(enums.StepCart))

	require.Len(t, f.mailer.sent, 1)
	assert.Empty(t, f.mailer.sent[0].Attachments)
	assert.Equal(t, 1, f.push.calls)
	assert.Len(t, f.cart.calls, 1)

	stepErrs := report.StepErrors()
	require.Len(t, stepErrs, 1)
	assert.Equal(t, enums.StepInvoicePDF, stepErrs[0].Step)
}

func TestEmptyAdminTokenListIsNoop(t *testing.T) {
	f := newPipelineFixture()
	f.users.listTokens = func(context.Context) ([]string, error) { return nil, nil }
	f.push.send = func(_ context.Context, tokens []string, _ push.Notification) (push.Result, error) {
		return push.Result{}, nil
	}

	report := f.pipeline(t).Run(context.Background(), f.order)

	require.NoError(t, report.Err())
	assert.Empty(t, f.push.tokens)
	assert.Equal(t, metrics.ResultSuccess, report.Result(enums.StepPush))
	assert.Len(t, f.mailer.sent, 1)
	assert.Len(t, f.cart.calls, 1)
}

func TestProductLoadFailureSkipsInvoiceOnly(t *testing.T) {
	f := newPipelineFixture()
	f.products.findByIDs = func(context.Context, []uuid.UUID) ([]models.Product, error) {
		return nil, errors.New("catalog offline")
	}

	report := f.pipeline(t).Run(context.Background(), f.order)

	assert.True(t, report.Failed(enums.StepEnrich))
	assert.Equal(t, metrics.ResultSkipped, report.Result(enums.StepInvoicePDF))
	assert.Equal(t, metrics.ResultSkipped, report.Result(enums.StepEmail))
	assert.Empty(t, f.mailer.sent)
	assert.Equal(t, 1, f.push.calls)
	assert.Len(t, f.cart.calls, 1)
	assert.Equal(t, StateDone, report.State())
}

func TestStepFailuresAreIsolated(t *testing.T) {
	f := newPipelineFixture()
	f.notifications.err = errors.New("insert failed")
	f.mailer.err = errors.New("relay down")
	f.push.send = func(context.Context, []string, push.Notification) (push.Result, error) {
		panic("gateway client bug")
	}

	report := f.pipeline(t).Run(context.Background(), f.order)

	assert.True(t, report.Failed(enums.StepNotificationRecord))
	assert.True(t, report.Failed(enums.StepEmail))
	assert.True(t, report.Failed(enums.StepPush))
	assert.Equal(t, metrics.ResultSuccess, report.Result(enums.StepCart))
	assert.Len(t, report.StepErrors(), 3)
	assert.Equal(t, 1.0, counterValue(t, f.registry, "molimor_fulfillment_panics_total", nil))
}

func TestMissingBuyerFallsBackToOrderEmail(t *testing.T) {
	f := newPipelineFixture()
	f.users.findByID = func(context.Context, uuid.UUID) (*models.User, error) {
		return nil, gorm.ErrRecordNotFound
	}

	report := f.pipeline(t).Run(context.Background(), f.order)

	require.NoError(t, report.Err())
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "asha.order@example.com", f.mailer.sent[0].To)
}

func TestAdminTokenFailureOnlyFailsPush(t *testing.T) {
	f := newPipelineFixture()
	f.users.listTokens = func(context.Context) ([]string, error) { return nil, errors.New("timeout") }

	report := f.pipeline(t).Run(context.Background(), f.order)

	assert.True(t, report.Failed(enums.StepPush))
	assert.Zero(t, f.push.calls)
	assert.Equal(t, metrics.ResultSuccess, report.Result(enums.StepEnrich))
	assert.Equal(t, metrics.ResultSuccess, report.Result(enums.StepEmail))
}

func TestResendInvoiceOnlyEmails(t *testing.T) {
	f := newPipelineFixture()
	report := f.pipeline(t).ResendInvoice(context.Background(), f.order)

	require.NoError(t, report.Err())
	assert.Len(t, f.mailer.sent, 1)
	assert.Zero(t, f.push.calls)
	assert.Empty(t, f.cart.calls)
	assert.Empty(t, f.notifications.recorded)
	assert.Equal(t, map[string]string{"enrich": "success", "invoice_pdf": "success", "email": "success"}, report.Results())
}

func TestPushNotificationText(t *testing.T) {
	n := PushNotification(models.Order{OrderNumber: 123456, FName: "Ravi", LName: "Kumar", TotalAmount: decimal.RequireFromString("499.50")})
	assert.Equal(t, "Order #123456 by Ravi Kumar for ₹499.5", n.Body)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}
