package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"alpha_gateway/applog"
	"alpha_gateway/apperror"

	"github.com/gin-gonic/gin"
)

func testContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	return c, w
}

func TestQueryParams(t *testing.T) {
	c, _ := testContext("/x?low=1.5&high=abc&save=YES&limit=-3&n=7")

	if v := floatParam(c, "low"); v == nil || *v != 1.5 {
		t.Errorf("low = %v", v)
	}
	if v := floatParam(c, "high"); v != nil {
		t.Error("malformed value should be treated as absent")
	}
	if v := floatParam(c, "missing"); v != nil {
		t.Error("missing value should be nil")
	}
	for _, raw := range []string{"NaN", "nan", "Inf", "-Inf", "inf", "+Infinity", "1e999"} {
		c, _ := testContext("/x?v=" + url.QueryEscape(raw))
		if v := floatParam(c, "v"); v != nil {
			t.Errorf("%s should be treated as absent, got %v", raw, *v)
		}
	}
	if !boolParam(c, "save", false) || boolParam(c, "other", false) || !boolParam(c, "other", true) {
		t.Error("boolParam mismatch")
	}
	if intParam(c, "limit", 500) != 500 || intParam(c, "n", 500) != 7 {
		t.Error("intParam mismatch")
	}
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{apperror.NewQuota("slow down"), http.StatusTooManyRequests, "quota exceeded"},
		{apperror.NewUpstreamHTTP(503, "down"), http.StatusServiceUnavailable, ""},
		{apperror.NewNoHistory("empty"), http.StatusNotFound, "no history"},
		{errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		c, w := testContext("/x")
		respondError(c, applog.NewSilent(), tc.err)
		if w.Code != tc.status {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.status)
		}
		var body apperror.Body
		json.Unmarshal(w.Body.Bytes(), &body)
		if tc.body != "" && body.Error != tc.body {
			t.Errorf("%v: error = %q", tc.err, body.Error)
		}
	}
}
