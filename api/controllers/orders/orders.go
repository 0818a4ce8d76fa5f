package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/molimor/molimor-backend/api/middleware"
	"github.com/molimor/molimor-backend/api/responses"
	"github.com/molimor/molimor-backend/api/validators"
	"github.com/molimor/molimor-backend/internal/fulfillment"
	internalorders "github.com/molimor/molimor-backend/internal/orders"
	"github.com/molimor/molimor-backend/pkg/enums"
	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/pagination"
)

const maxSearchLength = 120

// InvoiceResender re-runs invoice delivery for an order.
type InvoiceResender interface {
	Resend(ctx context.Context, actor uuid.UUID, orderID string) (*fulfillment.ResendResult, error)
}

// Place creates an order for the authenticated caller.
func Place(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		caller, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input internalorders.PlaceOrderInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.PlaceOrder(r.Context(), caller, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// ListMine returns the caller's orders, newest first.
func ListMine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		caller, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListMine(r.Context(), caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Detail returns one order by its external number.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		caller, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.Get(r.Context(), caller, strings.TrimSpace(chi.URLParam(r, "orderId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// AdminList is the filtered, paginated admin order listing.
func AdminList(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		filters, err := parseAdminFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.AdminList(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ResendInvoice re-delivers an order's invoice email. Always answers 202.
func ResendInvoice(resender InvoiceResender, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resender == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice resend unavailable"))
			return
		}
		caller, err := callerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID)
		}
		result, err := resender.Resend(ctx, caller.UserID, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "queued", result.Queued), "orders.invoice_resend")
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

func callerFromRequest(r *http.Request) (internalorders.Caller, error) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return internalorders.Caller{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context")
	}
	return internalorders.Caller{UserID: id.UserID, Role: id.Role}, nil
}

func parseAdminFilters(r *http.Request) (internalorders.AdminListFilters, error) {
	var filters internalorders.AdminListFilters

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
				WithDetails(map[string]any{"field": "status"})
		}
		filters.Status = &status
	}

	userID, err := validators.ParseQueryUUID(r, "userId")
	if err != nil {
		return filters, err
	}
	filters.UserID = userID

	if filters.StartDate, err = validators.ParseQueryTime(r, "startDate"); err != nil {
		return filters, err
	}
	if filters.EndDate, err = validators.ParseQueryEndTime(r, "endDate"); err != nil {
		return filters, err
	}

	filters.Search = validators.SanitizeString(r.URL.Query().Get("search"), maxSearchLength)

	if filters.Page, err = validators.ParseQueryInt(r, "page", 1, 1, 1_000_000); err != nil {
		return filters, err
	}
	if filters.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
		return filters, err
	}
	return filters, nil
}
