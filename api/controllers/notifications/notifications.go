package notifications

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/molimor/molimor-backend/api/responses"
	"github.com/molimor/molimor-backend/api/validators"
	internalnotifications "github.com/molimor/molimor-backend/internal/notifications"
	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
	"github.com/molimor/molimor-backend/pkg/logger"
)

type deleteRequest struct {
	NotificationIDs []uuid.UUID `json:"notificationIds" validate:"required,min=1"`
}

// ListPending returns unacknowledged order notifications, one row per item.
func ListPending(svc internalnotifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		items, err := svc.ListPending(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// Delete acknowledges notifications by removing them.
func Delete(svc internalnotifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		var req deleteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.DeleteMany(r.Context(), req.NotificationIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
