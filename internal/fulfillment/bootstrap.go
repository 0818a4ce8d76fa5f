package fulfillment

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/internal/cart"
	"github.com/molimor/molimor-backend/internal/notifications"
	"github.com/molimor/molimor-backend/internal/products"
	"github.com/molimor/molimor-backend/internal/users"
	"github.com/molimor/molimor-backend/pkg/config"
	"github.com/molimor/molimor-backend/pkg/invoicepdf"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/mailer"
	"github.com/molimor/molimor-backend/pkg/metrics"
	"github.com/molimor/molimor-backend/pkg/push"
)

// Bootstrap builds a Pipeline backed by conn and the configured mail and push
// providers. The api and the worker share it.
func Bootstrap(ctx context.Context, cfg *config.Config, conn *gorm.DB, m *metrics.FulfillmentMetrics, logg *logger.Logger) (*Pipeline, error) {
	productRepo := products.NewRepository(conn)
	notificationSvc, err := notifications.NewService(notifications.NewRepository(conn), productRepo)
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}
	notifier, err := push.NewClient(ctx, cfg.Push, logg)
	if err != nil {
		return nil, fmt.Errorf("push client: %w", err)
	}
	return NewPipeline(Dependencies{
		Notifications: notificationSvc,
		Users:         users.NewRepository(conn),
		Products:      productRepo,
		Cart:          cart.NewRepository(conn),
		Renderer:      invoicepdf.NewRenderer(cfg.Sendgrid.FromName),
		Mailer:        mailer.New(cfg.Sendgrid, logg),
		Push:          notifier,
		Metrics:       m,
		Logger:        logg,
		Config:        cfg.Fulfillment,
		BaseURL:       cfg.App.PublicBaseURL,
	})
}
