package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"alpha_gateway/applog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (s *stepClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *stepClock) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

func TestSlidingWindowLimiter_Hit(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	rl := NewSlidingWindowLimiter()
	rl.now = clock.Now

	for i := 0; i < 10; i++ {
		if rl.Hit(BucketConfigWrite, "1.2.3.4", 10, time.Minute) {
			t.Fatalf("request %d should be allowed", i+1)
		}
		clock.Advance(time.Second)
	}
	if !rl.Hit(BucketConfigWrite, "1.2.3.4", 10, time.Minute) {
		t.Fatal("11th request within window should be denied")
	}
	if rl.Hit(BucketConfigWrite, "5.6.7.8", 10, time.Minute) {
		t.Fatal("other identity must have its own bucket")
	}

	// The first request falls out of the window after 60s.
	clock.Advance(50 * time.Second)
	if rl.Hit(BucketConfigWrite, "1.2.3.4", 10, time.Minute) {
		t.Fatal("request should be allowed once the oldest entry leaves the window")
	}
	if !rl.Hit(BucketConfigWrite, "1.2.3.4", 10, time.Minute) {
		t.Fatal("window should be full again")
	}
}

func TestSlidingWindowLimiter_DeniedNotRecorded(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	rl := NewSlidingWindowLimiter()
	rl.now = clock.Now

	rl.Hit("b", "ip", 1, time.Minute)
	for i := 0; i < 5; i++ {
		if !rl.Hit("b", "ip", 1, time.Minute) {
			t.Fatal("expected denial")
		}
	}
	clock.Advance(time.Minute)
	if rl.Hit("b", "ip", 1, time.Minute) {
		t.Fatal("denied requests must not extend the window")
	}
}

func TestSlidingWindowLimiter_Cleanup(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	rl := NewSlidingWindowLimiter()
	rl.now = clock.Now
	rl.Hit("b", "ip", 3, time.Minute)
	clock.Advance(2 * time.Minute)
	rl.cleanup(time.Minute)
	if len(rl.buckets) != 0 {
		t.Errorf("expected idle bucket to be removed, have %d", len(rl.buckets))
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewSlidingWindowLimiter()
	r := gin.New()
	r.POST("/config", RateLimit(rl, BucketConfigWrite, 2, time.Minute), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/config", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status sequence %v", codes)
	}
}

type staticAllowList []string

func (s staticAllowList) AllowedIPs() []string { return s }

func TestIPAllowList(t *testing.T) {
	handler := func(list []string) *gin.Engine {
		r := gin.New()
		r.GET("/config", IPAllowList(staticAllowList(list)), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return r
	}

	cases := []struct {
		list []string
		ip   string
		want int
	}{
		{nil, "10.0.0.1", http.StatusOK},
		{[]string{"10.0.0.1"}, "10.0.0.1", http.StatusOK},
		{[]string{"10.0.0.1"}, "10.0.0.2", http.StatusForbidden},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/config", nil)
		req.RemoteAddr = tc.ip + ":1234"
		handler(tc.list).ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("list=%v ip=%s: got %d want %d", tc.list, tc.ip, w.Code, tc.want)
		}
	}
}

func TestCORSAndRequestID(t *testing.T) {
	r := gin.New()
	r.Use(CORS(), RequestLogger(applog.NewSilent()))
	r.GET("/data/quote", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/data/quote", nil))
	if w.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/data/quote", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected request id header")
	}
}

func TestRequestIDFromClient(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(applog.NewSilent()))
	r.GET("/data/quote", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		sent string
		keep bool
	}{
		{"abc-123-DEF", true},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
		{"bad id", false},
		{"<script>", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/data/quote", nil)
		req.Header.Set(RequestIDHeader, tc.sent)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		got := w.Header().Get(RequestIDHeader)
		if tc.keep && got != tc.sent {
			t.Errorf("%q should be echoed, got %q", tc.sent, got)
		}
		if !tc.keep {
			if got == tc.sent {
				t.Errorf("%q should be replaced", tc.sent)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("replacement %q is not a uuid", got)
			}
		}
	}
}
