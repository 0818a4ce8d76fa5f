package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataTable(t *testing.T) {
	tests := map[Code]Metadata{
		CodeValidation:      {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true, ExposeMessage: true},
		CodeUnauthorized:    {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", ExposeMessage: true},
		CodeForbidden:       {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied", ExposeMessage: true},
		CodeNotFound:        {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", ExposeMessage: true},
		CodeConflict:        {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected", ExposeMessage: true},
		CodeIdempotency:     {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true, ExposeMessage: true},
		CodeOrderIDConflict: {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error", PublicCode: CodeInternal},
		CodeInternal:        {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
		CodeDependency:      {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},
	}
	for code, want := range tests {
		t.Run(string(code), func(t *testing.T) {
			assert.Equal(t, want, MetadataFor(code))
		})
	}
}

func TestServerErrorsNeverExposeTheirMessage(t *testing.T) {
	for code, meta := range metadataByCode {
		if meta.HTTPStatus >= http.StatusInternalServerError {
			assert.False(t, meta.ExposeMessage, "code %s", code)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing fname")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing fname" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "fname"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("duplicate key")
	wrapped := Wrap(CodeOrderIDConflict, cause, "order id taken")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeOrderIDConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestIsCodeFollowsWrapping(t *testing.T) {
	inner := New(CodeOrderIDConflict, "taken")
	outer := fmt.Errorf("place order: %w", inner)
	if !IsCode(outer, CodeOrderIDConflict) {
		t.Fatalf("expected IsCode to see through fmt wrapping")
	}
	if IsCode(outer, CodeInternal) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatalf("nil should never match")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpCapturesCodeAndChain(t *testing.T) {
	err := fmt.Errorf("insert order: %w", Wrap(CodeInternal, stdErrors.New("conn reset"), "store failure"))
	d := Dump(err)
	if d.Code != CodeInternal {
		t.Fatalf("expected internal code, got %s", d.Code)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(d.Chain), d.Chain)
	}
}

type silentWrap struct{ err error }

func (s silentWrap) Error() string { return s.err.Error() }
func (s silentWrap) Unwrap() error { return s.err }

func TestDumpSkipsSilentWrappersAndCapsDepth(t *testing.T) {
	d := Dump(silentWrap{err: Wrap(CodeDependency, stdErrors.New("timeout"), "pubsub")})
	if len(d.Chain) != 2 {
		t.Fatalf("expected silent wrapper collapsed, got %v", d.Chain)
	}
	if !d.Retryable {
		t.Fatalf("dependency errors should be retryable")
	}

	var err error = stdErrors.New("root")
	for i := 0; i < maxChainDepth+4; i++ {
		err = fmt.Errorf("hop %d: %w", i, err)
	}
	d = Dump(err)
	if len(d.Chain) != maxChainDepth || !d.Truncated {
		t.Fatalf("expected truncated chain of %d, got %d (truncated=%v)", maxChainDepth, len(d.Chain), d.Truncated)
	}
}

func TestDumpFieldsOmitEmptyPostgresAttributes(t *testing.T) {
	fields := Dump(New(CodeInternal, "boom")).Fields()
	if fields["error_code"] != string(CodeInternal) {
		t.Fatalf("unexpected error_code %v", fields["error_code"])
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatalf("pg_code should be omitted when empty")
	}
	if _, ok := fields["error_chain_truncated"]; ok {
		t.Fatalf("truncation flag set on a short chain")
	}
}

func TestFieldAndIs(t *testing.T) {
	err := Field("limit", "query parameter out of range", map[string]any{"min": 1, "max": 100})
	if err.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", err.Code())
	}
	details, _ := err.Details().(map[string]any)
	if details["field"] != "limit" || details["max"] != 100 {
		t.Fatalf("unexpected details %v", details)
	}

	wrapped := fmt.Errorf("list orders: %w", Errorf(CodeNotFound, "order %s not found", "500002"))
	if !stdErrors.Is(wrapped, New(CodeNotFound, "")) {
		t.Fatalf("expected errors.Is to match by code")
	}
	if stdErrors.Is(wrapped, New(CodeConflict, "")) {
		t.Fatalf("different codes must not match")
	}
}
