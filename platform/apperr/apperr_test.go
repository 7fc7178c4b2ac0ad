package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGetKindFollowsWrappedChain(t *testing.T) {
	base := Conflict("contact already enrolled")
	wrapped := fmt.Errorf("enroll: %w", base)

	if got := GetKind(wrapped); got != KindConflict {
		t.Fatalf("expected KindConflict, got %v", got)
	}
	if !Is(wrapped, KindConflict) {
		t.Fatalf("expected Is(wrapped, KindConflict) to be true")
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatalf("expected plain errors to map to KindUnknown")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:     http.StatusNotFound,
		KindValidation:   http.StatusBadRequest,
		KindConflict:     http.StatusConflict,
		KindUnauthorized: http.StatusUnauthorized,
		KindUnavailable:  http.StatusServiceUnavailable,
		KindInternal:     http.StatusInternalServerError,
		KindUnknown:      http.StatusBadRequest,
	}
	for kind, want := range cases {
		if got := New(kind, "x").HTTPStatus(); got != want {
			t.Errorf("kind %v: expected status %d, got %d", kind, want, got)
		}
	}
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	err := Unavailable("gateway down", errors.New("dial tcp: refused")).WithOp("dispatch")
	want := "dispatch: gateway down: dial tcp: refused"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}
