package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewValidation("missing symbol"), http.StatusBadRequest},
		{NewQuota("slow down"), http.StatusTooManyRequests},
		{NewTimeout(errors.New("deadline")), http.StatusGatewayTimeout},
		{NewUnreachable(errors.New("refused")), http.StatusBadGateway},
		{NewUpstreamHTTP(503, "busy"), http.StatusServiceUnavailable},
		{NewUpstreamHTTP(0, ""), http.StatusInternalServerError},
		{NewNoHistory("quota"), http.StatusNotFound},
		{NewNotFound("file not found"), http.StatusNotFound},
		{New(Forbidden, "forbidden"), http.StatusForbidden},
		{NewRateLimited("too many writes"), http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("loading daily: %w", NewQuota("limit"))
	if KindOf(err) != QuotaExceeded {
		t.Fatalf("KindOf = %v, want quota_exceeded", KindOf(err))
	}
	if !Recoverable(err) {
		t.Error("quota should be recoverable")
	}
	if Recoverable(NewValidation("bad")) {
		t.Error("validation should not be recoverable")
	}
	if Recoverable(NewUpstreamHTTP(500, "")) {
		t.Error("upstream http error should not be recoverable")
	}
}

func TestBodyOf(t *testing.T) {
	b := BodyOf(NewUpstreamHTTP(502, "bad gateway"))
	if b.Raw != "bad gateway" || b.Error != "upstream http 502" {
		t.Errorf("unexpected body %+v", b)
	}
	b = BodyOf(errors.New("secret detail"))
	if b.Error != "internal error" {
		t.Errorf("foreign error leaked: %+v", b)
	}
}
