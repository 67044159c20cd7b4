package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		cookie string
		want   string
		ok     bool
	}{
		{name: "missing"},
		{name: "bearer", header: "Bearer abc.def", want: "abc.def", ok: true},
		{name: "lower case scheme", header: "bearer abc", want: "abc", ok: true},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "empty token", header: "Bearer   "},
		{name: "cookie wins", header: "Bearer header-token", cookie: "cookie-token", want: "cookie-token", ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				c.Request.AddCookie(&http.Cookie{Name: AccessTokenName, Value: tc.cookie})
			}
			got, ok := BearerToken(c)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRequestLogger_RequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "upstream-id", w.Header().Get(RequestIDHeader))
}

func TestMetrics_LabelsByRouteTemplate(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	counter := metrics.RequestTotal.WithLabelValues(http.MethodGet, "/things/:id", "200")
	before := testutil.ToFloat64(counter)
	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/"+id, nil))
	}
	assert.Equal(t, before+3, testutil.ToFloat64(counter))

	unmatched := metrics.RequestTotal.WithLabelValues(http.MethodGet, "unmatched", "404")
	before = testutil.ToFloat64(unmatched)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(unmatched))
}

func gated(account *model.Account, handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if account != nil {
			c.Set(accountKey, account)
		}
		c.Next()
	})
	r.GET("/", handler, func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRequirePermission(t *testing.T) {
	evaluator := service.NewEvaluator()
	viewer := &model.Account{Role: model.RoleStaff, IsApproved: true, Permissions: []model.AccountPermission{
		{Module: model.ModuleInventory, Level: model.LevelView},
	}}

	cases := []struct {
		name    string
		account *model.Account
		level   model.PermissionLevel
		status  int
	}{
		{"anonymous", nil, model.LevelView, http.StatusUnauthorized},
		{"viewer reads", viewer, model.LevelView, http.StatusOK},
		{"viewer writes", viewer, model.LevelEdit, http.StatusForbidden},
		{"admin writes", &model.Account{Role: model.RoleAdmin}, model.LevelEdit, http.StatusOK},
		{"customer reads", &model.Account{Role: model.RoleCustomer, IsApproved: true}, model.LevelView, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gated(tc.account, RequirePermission(evaluator, model.ModuleInventory, tc.level))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, tc.status, w.Code)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	evaluator := service.NewEvaluator()

	w := httptest.NewRecorder()
	gated(&model.Account{Role: model.RoleStaff, IsApproved: true}, RequireAdmin(evaluator)).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	gated(&model.Account{Role: model.RoleAdmin}, RequireAdmin(evaluator)).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
