package apierror_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/radixinsight/analytics/internal/apierror"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := apierror.New(apierror.KindConflict, "already active")
	wrapped := fmt.Errorf("start flow: %w", base)

	if got := apierror.KindOf(wrapped); got != apierror.KindConflict {
		t.Fatalf("expected KindConflict, got %v", got)
	}
}

func TestKindOf_ContextDeadline(t *testing.T) {
	err := fmt.Errorf("query: %w", context.DeadlineExceeded)

	if got := apierror.KindOf(err); got != apierror.KindDeadlineExceeded {
		t.Fatalf("expected KindDeadlineExceeded, got %v", got)
	}
}

func TestKindOf_UnclassifiedDefaultsToInternal(t *testing.T) {
	if got := apierror.KindOf(errors.New("boom")); got != apierror.KindInternal {
		t.Fatalf("expected KindInternal, got %v", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind apierror.Kind
		want int
	}{
		{apierror.KindInvalidInput, http.StatusBadRequest},
		{apierror.KindUnauthorized, http.StatusUnauthorized},
		{apierror.KindForbidden, http.StatusForbidden},
		{apierror.KindNotFound, http.StatusNotFound},
		{apierror.KindConflict, http.StatusConflict},
		{apierror.KindDeadlineExceeded, http.StatusGatewayTimeout},
		{apierror.KindUnavailable, http.StatusServiceUnavailable},
		{apierror.KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := apierror.HTTPStatus(tc.kind); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestClientMessage_ProductionHidesInternalDetail(t *testing.T) {
	err := apierror.Wrap(apierror.KindUnavailable, "insert failed",
		errors.New(`pq: connection to "10.0.0.5:5432" refused`))

	msg := apierror.ClientMessage(err, true)
	if msg != "service temporarily unavailable" {
		t.Fatalf("expected generic message, got %q", msg)
	}
}

func TestClientMessage_DevelopmentKeepsMessage(t *testing.T) {
	err := apierror.Wrap(apierror.KindUnavailable, "insert failed", errors.New("pq: boom"))

	msg := apierror.ClientMessage(err, false)
	if msg != "insert failed" {
		t.Fatalf("expected original message, got %q", msg)
	}
}

func TestClientMessage_ClientKindsAlwaysVisible(t *testing.T) {
	err := apierror.New(apierror.KindInvalidInput, "projectId is required")

	if msg := apierror.ClientMessage(err, true); msg != "projectId is required" {
		t.Fatalf("expected client message in production, got %q", msg)
	}
}

func TestRetryable(t *testing.T) {
	if !apierror.Retryable(apierror.KindUnavailable) {
		t.Fatal("expected KindUnavailable to be retryable")
	}
	if !apierror.Retryable(apierror.KindDeadlineExceeded) {
		t.Fatal("expected KindDeadlineExceeded to be retryable")
	}
	if apierror.Retryable(apierror.KindConflict) {
		t.Fatal("expected KindConflict to not be retryable")
	}
}
