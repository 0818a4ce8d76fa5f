package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
	"github.com/molimor/molimor-backend/pkg/logger"
	"github.com/molimor/molimor-backend/pkg/types"
)

// requestIDHeader is set by the RequestID middleware before handlers run.
const requestIDHeader = "X-Request-Id"

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope[any]{Data: data})
}

// WriteError renders err as the public error envelope. Anything that is not
// a *pkgerrors.Error is reported as INTERNAL_ERROR.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	if logg != nil {
		logFailure(ctx, logg, meta, typed, err)
	}
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: publicError(meta, typed, w.Header().Get(requestIDHeader))})
}

func publicError(meta pkgerrors.Metadata, typed *pkgerrors.Error, requestID string) types.APIError {
	out := types.APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		RequestID: requestID,
	}
	if meta.PublicCode != "" {
		out.Code = string(meta.PublicCode)
	}
	if meta.ExposeMessage && typed.Message() != "" {
		out.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		out.Details = typed.Details()
	}
	return out
}

// Client mistakes are warnings with a short summary. Server failures get the
// full error dump, plus the order id when the error names one.
func logFailure(ctx context.Context, logg *logger.Logger, meta pkgerrors.Metadata, typed *pkgerrors.Error, err error) {
	if meta.HTTPStatus < http.StatusInternalServerError {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"error":      typed.Error(),
			"error_code": string(typed.Code()),
		}), "request.rejected")
		return
	}
	fields := pkgerrors.Dump(err).Fields()
	if details, ok := typed.Details().(map[string]any); ok {
		if orderID, ok := details["orderId"]; ok {
			fields["order_id"] = orderID
		}
	}
	logg.Error(logg.WithFields(ctx, fields), "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zlog.Error().Err(err).Int("status", status).Msg("failed to encode response")
	}
}
