package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func newApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Get("/metrics", append(handlers, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})...)
	return app
}

func status(t *testing.T, app *fiber.App, req *http.Request) int {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestAdminTokenAuth(t *testing.T) {
	app := newApp(AdminTokenAuth("tok"))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"bearer", "Authorization", "Bearer tok", http.StatusOK},
		{"header", "X-Admin-Token", "tok", http.StatusOK},
		{"wrong", "X-Admin-Token", "nope", http.StatusUnauthorized},
		{"prefix only", "Authorization", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			if got := status(t, app, req); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	app := newApp(rl.Middleware())

	for i := 0; i < 2; i++ {
		if got := status(t, app, httptest.NewRequest(http.MethodGet, "/metrics", nil)); got != http.StatusOK {
			t.Fatalf("request %d = %d", i, got)
		}
	}
	if got := status(t, app, httptest.NewRequest(http.MethodGet, "/metrics", nil)); got != http.StatusTooManyRequests {
		t.Errorf("third request = %d", got)
	}

	now = now.Add(time.Minute)
	if got := status(t, app, httptest.NewRequest(http.MethodGet, "/metrics", nil)); got != http.StatusOK {
		t.Errorf("after refill = %d", got)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	rl.allow("a")
	now = now.Add(10 * time.Second)
	rl.allow("b")

	if _, ok := rl.clients["a"]; ok {
		t.Error("idle client kept")
	}
	if len(rl.clients) != 1 {
		t.Errorf("clients = %d", len(rl.clients))
	}
}
