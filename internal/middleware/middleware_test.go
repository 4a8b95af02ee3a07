package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/gate-presence/internal/config"
	"github.com/iliyamo/gate-presence/internal/middleware"
	"github.com/iliyamo/gate-presence/internal/utils"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func serve(e *echo.Echo, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestStaffAuth(t *testing.T) {
	const secret = "s3cret"
	e := echo.New()
	e.GET("/who", func(c echo.Context) error {
		role, _ := c.Get(middleware.CtxRole).(string)
		return c.String(http.StatusOK, middleware.UserID(c)+"/"+role)
	}, middleware.StaffAuth(secret))

	tok, err := utils.NewStaffToken(secret, "u-1", "admin", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	rec := serve(e, http.MethodGet, "/who", map[string]string{echo.HeaderAuthorization: "Bearer " + tok.Token})
	if rec.Code != http.StatusOK || rec.Body.String() != "u-1/ADMIN" {
		t.Fatalf("valid token: %d %q", rec.Code, rec.Body.String())
	}

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-1", "role": "ADMIN"}).SignedString([]byte(secret))
	expired, _ := utils.NewStaffToken(secret, "u-1", "ADMIN", -time.Minute)
	noSub, _ := utils.NewStaffToken(secret, "", "ADMIN", time.Minute)
	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic dTpw",
		"no exp":         "Bearer " + noExp,
		"expired":        "Bearer " + expired.Token,
		"no subject":     "Bearer " + noSub.Token,
		"garbage":        "Bearer abc.def.ghi",
	}
	for name, auth := range cases {
		t.Run(name, func(t *testing.T) {
			hdr := map[string]string{}
			if auth != "" {
				hdr[echo.HeaderAuthorization] = auth
			}
			if rec := serve(e, http.MethodGet, "/who", hdr); rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestStaffAuth_EmptySecretRejects(t *testing.T) {
	e := echo.New()
	e.GET("/who", okHandler, middleware.StaffAuth(""))

	tok, err := utils.NewStaffToken("x", "u-1", "ADMIN", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	for _, hdr := range []map[string]string{nil, {echo.HeaderAuthorization: "Bearer " + tok.Token}} {
		if rec := serve(e, http.MethodGet, "/who", hdr); rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	setRole := func(role string) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				if role != "" {
					c.Set(middleware.CtxRole, role)
				}
				return next(c)
			}
		}
	}
	e.GET("/admin", okHandler, setRole("ADMIN"), middleware.RequireRole(middleware.RoleAdmin))
	e.GET("/staff", okHandler, setRole("STAFF"), middleware.RequireRole(middleware.RoleAdmin))
	e.GET("/anon", okHandler, setRole(""), middleware.RequireRole(middleware.RoleStaff))

	if rec := serve(e, http.MethodGet, "/admin", nil); rec.Code != http.StatusOK {
		t.Errorf("admin: %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/staff", nil); rec.Code != http.StatusForbidden {
		t.Errorf("staff on admin route: %d", rec.Code)
	}
	if rec := serve(e, http.MethodGet, "/anon", nil); rec.Code != http.StatusForbidden {
		t.Errorf("anonymous: %d", rec.Code)
	}
}

func rateConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            time.Hour,
		KeyStrategy:    "gate",
		Prefix:         "rl",
	}
}

func TestRateLimit_PerGateBucket(t *testing.T) {
	rdb, _ := newRedis(t)
	e := echo.New()
	e.POST("/scan", okHandler, middleware.RateLimit(rateConfig(), rdb))

	north := map[string]string{middleware.GateHeader: "north"}
	for i := 0; i < 2; i++ {
		if rec := serve(e, http.MethodPost, "/scan", north); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
	rec := serve(e, http.MethodPost, "/scan", north)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("headers = %v", rec.Header())
	}

	// Another gate has its own bucket.
	if rec := serve(e, http.MethodPost, "/scan", map[string]string{middleware.GateHeader: "south"}); rec.Code != http.StatusOK {
		t.Fatalf("other gate: %d", rec.Code)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	rdb, mr := newRedis(t)
	e := echo.New()
	e.POST("/scan", okHandler, middleware.RateLimit(rateConfig(), rdb))
	mr.Close()

	for i := 0; i < 5; i++ {
		if rec := serve(e, http.MethodPost, "/scan", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d with redis down: %d", i, rec.Code)
		}
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	cfg := rateConfig()
	cfg.Enabled = false
	e := echo.New()
	e.POST("/scan", okHandler, middleware.RateLimit(cfg, nil))
	for i := 0; i < 5; i++ {
		if rec := serve(e, http.MethodPost, "/scan", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
}

func TestResponseCache(t *testing.T) {
	rdb, mr := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, TTL: 30 * time.Second, Prefix: "cache", MaxBodyBytes: 1024}

	calls := 0
	e := echo.New()
	e.GET("/keys", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"keys": []string{"k1"}})
	}, middleware.ResponseCache(cfg, rdb))

	first := serve(e, http.MethodGet, "/keys", nil)
	if first.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first X-Cache = %q", first.Header().Get("X-Cache"))
	}
	second := serve(e, http.MethodGet, "/keys", nil)
	if second.Header().Get("X-Cache") != "HIT" || second.Body.String() != first.Body.String() {
		t.Fatalf("second = %q %q", second.Header().Get("X-Cache"), second.Body.String())
	}
	if second.Header().Get(echo.HeaderContentType) != first.Header().Get(echo.HeaderContentType) {
		t.Errorf("content type not preserved")
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}

	mr.FastForward(31 * time.Second)
	serve(e, http.MethodGet, "/keys", nil)
	if calls != 2 {
		t.Errorf("handler calls after expiry = %d, want 2", calls)
	}
}

func TestResponseCache_SkipsErrorsAndLargeBodies(t *testing.T) {
	rdb, mr := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 8}

	e := echo.New()
	e.GET("/fail", func(c echo.Context) error {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "down"})
	}, middleware.ResponseCache(cfg, rdb))
	e.GET("/big", func(c echo.Context) error {
		return c.String(http.StatusOK, "this body is longer than eight bytes")
	}, middleware.ResponseCache(cfg, rdb))

	serve(e, http.MethodGet, "/fail", nil)
	serve(e, http.MethodGet, "/big", nil)
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("cached keys = %v, want none", keys)
	}
}
