package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/internal/invoice"
	"github.com/molimor/molimor-backend/internal/products"
	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
	"github.com/molimor/molimor-backend/pkg/invoicepdf"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/mailer"
	"github.com/molimor/molimor-backend/pkg/metrics"
	"github.com/molimor/molimor-backend/pkg/push"
	"github.com/molimor/molimor-backend/pkg/telemetry"
)

const (
	pushTitle      = "🛒 New Order Placed!"
	pushTypeOrder  = "order_placed"
	pdfContentType = "application/pdf"
	spanStepPrefix = "fulfillment."
	attrOrderID    = "molimor.order_id"
)

var errInvoiceUnavailable = errors.New("invoice data unavailable")

type notificationRecorder interface {
	Record(ctx context.Context, orderID uuid.UUID) (*models.OrderNotification, error)
}

type userReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListAdminDeviceTokens(ctx context.Context) ([]string, error)
}

type productReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type cartRemover interface {
	RemoveItems(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) (int64, error)
}

// Dependencies are the collaborators of a Pipeline.
type Dependencies struct {
	Notifications notificationRecorder
	Users         userReader
	Products      productReader
	Cart          cartRemover
	Renderer      invoicepdf.Renderer
	Mailer        mailer.Sender
	Push          push.Notifier
	Metrics       *metrics.FulfillmentMetrics
	Logger        *logger.Logger
	Config        config.FulfillmentConfig
	BaseURL       string
	Now           func() time.Time
}

// Pipeline runs the post-commit side effects of an order.
type Pipeline struct {
	notifications notificationRecorder
	users         userReader
	products      productReader
	cart          cartRemover
	renderer      invoicepdf.Renderer
	mailer        mailer.Sender
	push          push.Notifier
	metrics       *metrics.FulfillmentMetrics
	logg          *logger.Logger
	cfg           config.FulfillmentConfig
	baseURL       string
	now           func() time.Time
}

// NewPipeline validates deps and builds a Pipeline.
func NewPipeline(deps Dependencies) (*Pipeline, error) {
	switch {
	case deps.Notifications == nil:
		return nil, fmt.Errorf("notification recorder required")
	case deps.Users == nil:
		return nil, fmt.Errorf("user reader required")
	case deps.Products == nil:
		return nil, fmt.Errorf("product reader required")
	case deps.Cart == nil:
		return nil, fmt.Errorf("cart remover required")
	case deps.Renderer == nil:
		return nil, fmt.Errorf("invoice renderer required")
	case deps.Mailer == nil:
		return nil, fmt.Errorf("mailer required")
	case deps.Push == nil:
		return nil, fmt.Errorf("push notifier required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewFulfillmentMetrics(nil)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		notifications: deps.Notifications,
		users:         deps.Users,
		products:      deps.Products,
		cart:          deps.Cart,
		renderer:      deps.Renderer,
		mailer:        deps.Mailer,
		push:          deps.Push,
		metrics:       m,
		logg:          deps.Logger,
		cfg:           deps.Config,
		baseURL:       deps.BaseURL,
		now:           now,
	}, nil
}

// enrichment is what the enrich step loaded. user and tokens may be missing
// without stopping the run.
type enrichment struct {
	user      *models.User
	catalog   map[uuid.UUID]models.Product
	tokens    []string
	tokensErr error
}

// invoiceData is the rendered invoice. pdf is nil when rendering failed.
type invoiceData struct {
	doc invoice.Document
	pdf []byte
}

// Run performs every side effect for order. It never returns an error: each
// step failure is recorded on the report and logged. Email, push and cart
// start together once the invoice is ready and Run waits for all three.
func (p *Pipeline) Run(ctx context.Context, order models.Order) *Report {
	p.metrics.Started()
	defer p.metrics.Finished()

	report := newReport(order.OrderID())
	ctx, span := telemetry.Tracer().Start(ctx, "fulfillment.run",
		trace.WithAttributes(attribute.String(attrOrderID, order.OrderID())))
	defer span.End()
	ctx = p.logg.WithOrderID(ctx, order.OrderID())

	p.runStep(ctx, report, enums.StepNotificationRecord, func(ctx context.Context) error {
		_, err := p.notifications.Record(ctx, order.ID)
		return err
	})

	report.advance(StateEnriching)
	enriched := p.enrich(ctx, report, order, true)

	report.advance(StateInvoicing)
	inv := p.buildInvoice(ctx, report, order, enriched)

	report.advance(StateNotifying)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		p.sendEmail(ctx, report, order, enriched, inv)
	}()
	go func() {
		defer wg.Done()
		p.sendPush(ctx, report, order, enriched)
	}()
	go func() {
		defer wg.Done()
		p.runStep(ctx, report, enums.StepCart, func(ctx context.Context) error {
			removed, err := p.cart.RemoveItems(ctx, order.UserID, order.Items.ProductIDs())
			if err == nil {
				p.logg.Info(p.logg.WithField(ctx, "removed", removed), "cart reconciled")
			}
			return err
		})
	}()
	wg.Wait()

	report.advance(StateDone)
	p.finish(ctx, span, report)
	return report
}

// ResendInvoice recomputes, renders and emails the invoice of an existing
// order. Push, cart and the notification record are left alone.
func (p *Pipeline) ResendInvoice(ctx context.Context, order models.Order) *Report {
	report := newReport(order.OrderID())
	ctx, span := telemetry.Tracer().Start(ctx, "fulfillment.resend_invoice",
		trace.WithAttributes(attribute.String(attrOrderID, order.OrderID())))
	defer span.End()
	ctx = p.logg.WithOrderID(ctx, order.OrderID())

	report.advance(StateEnriching)
	enriched := p.enrich(ctx, report, order, false)
	report.advance(StateInvoicing)
	inv := p.buildInvoice(ctx, report, order, enriched)
	report.advance(StateNotifying)
	p.sendEmail(ctx, report, order, enriched, inv)
	report.advance(StateDone)

	p.finish(ctx, span, report)
	return report
}

func (p *Pipeline) finish(ctx context.Context, span trace.Span, report *Report) {
	if err := report.Err(); err != nil {
		span.SetStatus(codes.Error, "fulfillment incomplete")
		p.logg.Warn(p.logg.WithField(ctx, "failed_steps", len(report.StepErrors())), "fulfillment finished with failures")
		return
	}
	p.logg.Info(ctx, "fulfillment finished")
}

// enrich loads the buyer, the ordered products and, for a full run, the admin
// device tokens in parallel. Only a failed product load fails the step since
// the invoice cannot be built without it.
func (p *Pipeline) enrich(ctx context.Context, report *Report, order models.Order, withTokens bool) *enrichment {
	var out *enrichment
	p.runStep(ctx, report, enums.StepEnrich, func(ctx context.Context) error {
		e := &enrichment{}
		var g errgroup.Group
		g.Go(func() error {
			user, err := p.users.FindByID(ctx, order.UserID)
			switch {
			case err == nil:
				e.user = user
			case errors.Is(err, gorm.ErrRecordNotFound):
				p.logg.Warn(ctx, "order buyer not found, using order contact fields")
			default:
				p.logg.Error(ctx, "load order buyer failed, using order contact fields", err)
			}
			return nil
		})
		g.Go(func() error {
			rows, err := p.products.FindByIDs(ctx, order.Items.ProductIDs())
			if err != nil {
				return fmt.Errorf("load products: %w", err)
			}
			e.catalog = products.Index(rows)
			return nil
		})
		if withTokens {
			g.Go(func() error {
				e.tokens, e.tokensErr = p.users.ListAdminDeviceTokens(ctx)
				return nil
			})
		}
		err := g.Wait()
		out = e
		return err
	})
	if out == nil {
		out = &enrichment{}
	}
	return out
}

func (p *Pipeline) buildInvoice(ctx context.Context, report *Report, order models.Order, e *enrichment) *invoiceData {
	if e.catalog == nil {
		p.skipStep(ctx, report, enums.StepInvoicePDF, errInvoiceUnavailable.Error())
		return nil
	}

	now := p.now()
	comp := invoice.Calculate(order.Items, e.catalog, now)
	doc := invoice.NewDocument(order, e.user, comp, p.baseURL, now)
	inv := &invoiceData{doc: doc}

	ctx = p.logg.WithFields(ctx, map[string]any{
		"gst_resolved_at": comp.GSTResolvedAt.UTC().Format(time.RFC3339),
		"skipped_lines":   len(comp.Skipped),
	})
	p.runStep(ctx, report, enums.StepInvoicePDF, func(ctx context.Context) error {
		pdf, err := p.renderer.Render(ctx, doc.PDF())
		if err != nil {
			return err
		}
		inv.pdf = pdf
		return nil
	})
	return inv
}

// sendEmail mails the invoice to the buyer. A failed render still sends the
// email, without the attachment.
func (p *Pipeline) sendEmail(ctx context.Context, report *Report, order models.Order, e *enrichment, inv *invoiceData) {
	if inv == nil {
		p.skipStep(ctx, report, enums.StepEmail, errInvoiceUnavailable.Error())
		return
	}
	msg := mailer.Message{
		Template: mailer.TemplateBillingInvoice,
		Subject:  p.cfg.InvoiceSubject,
		To:       recipient(order, e.user),
		ToName:   inv.doc.Name,
		Data:     inv.doc,
	}
	if len(inv.pdf) > 0 {
		msg.Attachments = []mailer.Attachment{{
			Filename:    inv.doc.AttachmentName(),
			ContentType: pdfContentType,
			Content:     inv.pdf,
		}}
	} else {
		p.logg.Warn(ctx, "sending invoice email without attachment")
	}
	p.runStep(ctx, report, enums.StepEmail, func(ctx context.Context) error {
		return p.mailer.Send(ctx, msg)
	})
}

func (p *Pipeline) sendPush(ctx context.Context, report *Report, order models.Order, e *enrichment) {
	p.runStep(ctx, report, enums.StepPush, func(ctx context.Context) error {
		if e.tokensErr != nil {
			return fmt.Errorf("load admin device tokens: %w", e.tokensErr)
		}
		result, err := p.push.Send(ctx, e.tokens, PushNotification(order))
		p.logg.Info(p.logg.WithFields(ctx, map[string]any{
			"push_sent":    result.Sent,
			"push_skipped": result.Skipped,
			"push_failed":  result.Failed,
		}), "admin push dispatched")
		return err
	})
}

// PushNotification is the admin alert for a new order.
func PushNotification(order models.Order) push.Notification {
	return push.Notification{
		Title: pushTitle,
		Body: fmt.Sprintf("Order #%s by %s for ₹%s",
			order.OrderID(),
			strings.TrimSpace(order.FName+" "+order.LName),
			order.TotalAmount.String()),
		Data: map[string]string{
			"orderId": order.OrderID(),
			"type":    pushTypeOrder,
		},
	}
}

func recipient(order models.Order, user *models.User) string {
	if user != nil && strings.TrimSpace(user.Email) != "" {
		return user.Email
	}
	return order.Email
}

// runStep runs fn under its own span and timeout, recovering a panic into a
// step failure so sibling steps keep running.
func (p *Pipeline) runStep(ctx context.Context, report *Report, step enums.FulfillmentStep, fn func(ctx context.Context) error) {
	ctx = p.logg.WithField(ctx, "step", step.String())
	ctx, span := telemetry.Tracer().Start(ctx, spanStepPrefix+step.String())
	defer span.End()

	if p.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.StepTimeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				p.metrics.IncPanic()
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.ObserveStep(step.String(), metrics.ResultFailure, elapsed)
		report.record(step, metrics.ResultFailure, err)
		p.logg.Error(ctx, "fulfillment step failed", err)
		return
	}
	p.metrics.ObserveStep(step.String(), metrics.ResultSuccess, elapsed)
	report.record(step, metrics.ResultSuccess, nil)
	p.logg.Debug(ctx, "fulfillment step succeeded")
}

func (p *Pipeline) skipStep(ctx context.Context, report *Report, step enums.FulfillmentStep, reason string) {
	p.metrics.ObserveStep(step.String(), metrics.ResultSkipped, 0)
	report.record(step, metrics.ResultSkipped, nil)
	p.logg.Warn(p.logg.WithFields(ctx, map[string]any{"step": step.String(), "reason": reason}), "fulfillment step skipped")
}
