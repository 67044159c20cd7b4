package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"backoffice/internal/cache"
	"backoffice/internal/identity"
	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeVerifier accepts tokens equal to a known subject id.
type fakeVerifier map[string]*identity.Identity

func (f fakeVerifier) Verify(token string) (*identity.Identity, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return nil, identity.ErrInvalidToken
}

type apiEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	verifier fakeVerifier
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	productRepo := repository.NewProductRepository(db)
	variantRepo := repository.NewVariantRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db, 0)

	ledger := service.NewStockLedger(productRepo, variantRepo, repository.NewStockAdjustmentRepository(db), txManager, nil, 10)
	orders := service.NewOrderService(repository.NewOrderRepository(db), productRepo, variantRepo, auditRepo, ledger, txManager, nil)
	catalog := service.NewCatalogService(productRepo, variantRepo, auditRepo, ledger, txManager)
	accounts := service.NewAccountService(repository.NewAccountRepository(db), auditRepo, txManager, cache.NewAccountCache(nil, 0))
	evaluator := service.NewEvaluator()

	verifier := fakeVerifier{}
	router := gin.New()
	api := router.Group("/api", middleware.Authenticate(verifier, accounts))
	NewAccountHandler(accounts, evaluator).RegisterRoutes(api)
	NewCatalogHandler(catalog, evaluator).RegisterRoutes(api)
	NewInventoryHandler(ledger, evaluator).RegisterRoutes(api)
	NewOrderHandler(orders, evaluator).RegisterRoutes(api)
	NewAuditHandler(service.NewAuditService(auditRepo), evaluator).RegisterRoutes(api)
	NewStatisticsHandler(service.NewStatisticsService(repository.NewStatisticsRepository(db)), orders, ledger, evaluator).RegisterRoutes(api)

	return &apiEnv{db: db, router: router, verifier: verifier}
}

// login seeds an account and returns a bearer token for it.
func (e *apiEnv) login(t *testing.T, role model.Role, approved bool, perms model.PermissionMatrix) (*model.Account, string) {
	t.Helper()
	account := testutil.SeedAccount(t, e.db, role, approved, perms)
	e.verifier[account.SubjectID] = &identity.Identity{SubjectID: account.SubjectID, Email: account.Email}
	return account, account.SubjectID
}

func performRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data), string(env.Data))
	}
	return env
}

func TestAuthenticate(t *testing.T) {
	env := newAPIEnv(t)

	w := performRequest(env.router, http.MethodGet, "/api/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(env.router, http.MethodGet, "/api/auth/me", nil, bearer("unknown"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(env.router, http.MethodGet, "/api/auth/me", nil, map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMe_ProvisionsOnFirstRequest(t *testing.T) {
	env := newAPIEnv(t)
	env.verifier["fresh"] = &identity.Identity{SubjectID: "fresh", Email: "fresh@example.com", EmailVerified: true}

	w := performRequest(env.router, http.MethodGet, "/api/auth/me", nil, bearer("fresh"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me service.AccountResponse
	decode(t, w, &me)
	assert.Equal(t, model.RoleCustomer, me.Role)
	assert.False(t, me.IsApproved)
	assert.Empty(t, me.EffectivePermissions)

	// customers never reach the admin surface
	w = performRequest(env.router, http.MethodGet, "/api/products", nil, bearer("fresh"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMe_ReadsCookie(t *testing.T) {
	env := newAPIEnv(t)
	_, token := env.login(t, model.RoleAdmin, true, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenName, Value: token})
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var me service.AccountResponse
	decode(t, w, &me)
	assert.Equal(t, model.LevelEdit, me.EffectivePermissions[model.ModuleUsers])
}

func TestPermissionGate_ReadOnlyStaff(t *testing.T) {
	env := newAPIEnv(t)
	_, token := env.login(t, model.RoleStaff, true, model.PermissionMatrix{model.ModuleProducts: model.LevelView})

	w := performRequest(env.router, http.MethodGet, "/api/products", nil, bearer(token))
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(env.router, http.MethodPost, "/api/products", map[string]interface{}{"name": "Lamp"}, bearer(token))
	require.Equal(t, http.StatusForbidden, w.Code)
	var data map[string]string
	decode(t, w, &data)
	assert.Equal(t, "products", data["module"])
	assert.Equal(t, service.ReasonReadOnly, data["reason"])

	w = performRequest(env.router, http.MethodGet, "/api/orders", nil, bearer(token))
	require.Equal(t, http.StatusForbidden, w.Code)
	decode(t, w, &data)
	assert.Equal(t, service.ReasonNoAccess, data["reason"])

	w = performRequest(env.router, http.MethodGet, "/api/accounts", nil, bearer(token))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPermissionGate_PendingStaff(t *testing.T) {
	env := newAPIEnv(t)
	_, token := env.login(t, model.RoleStaff, false, nil)

	w := performRequest(env.router, http.MethodGet, "/api/products", nil, bearer(token))
	require.Equal(t, http.StatusForbidden, w.Code)
	var data map[string]string
	decode(t, w, &data)
	assert.Equal(t, service.ReasonPendingApproval, data["reason"])
}

func TestCatalogAndInventory_AdminFlow(t *testing.T) {
	env := newAPIEnv(t)
	admin, token := env.login(t, model.RoleAdmin, true, nil)

	w := performRequest(env.router, http.MethodPost, "/api/products", map[string]interface{}{
		"name":       "Desk Lamp",
		"base_price": "24.90",
		"stock":      5,
	}, bearer(token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var product model.Product
	decode(t, w, &product)
	assert.Equal(t, "desk-lamp", product.Slug)
	assert.Equal(t, 5, product.Stock)

	w = performRequest(env.router, http.MethodPost, "/api/inventory/adjustments", map[string]interface{}{
		"product_id": product.ID,
		"quantity":   -3,
		"type":       "DAMAGE",
		"reason":     "damaged in storage",
	}, bearer(token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var adj model.StockAdjustment
	decode(t, w, &adj)
	assert.Equal(t, -3, adj.Quantity)
	assert.Equal(t, 5, adj.PreviousStock)
	assert.Equal(t, 2, adj.NewStock)
	assert.Equal(t, admin.Email, adj.AdjustedBy)

	w = performRequest(env.router, http.MethodPost, "/api/inventory/adjustments", map[string]interface{}{
		"product_id": product.ID,
		"quantity":   -7,
		"type":       "DECREASE",
	}, bearer(token))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var negative service.NegativeStockError
	decode(t, w, &negative)
	assert.Equal(t, "product", negative.TargetKind)
	assert.Equal(t, 2, negative.Available)
	assert.Equal(t, 2, testutil.StockOf(t, env.db, product.ID))
}

func TestInventory_RejectsBadInput(t *testing.T) {
	env := newAPIEnv(t)
	_, token := env.login(t, model.RoleAdmin, true, nil)
	product := testutil.SeedProduct(t, env.db, "Chair", 4)

	w := performRequest(env.router, http.MethodPost, "/api/inventory/adjustments", map[string]interface{}{
		"quantity": 1,
		"type":     "INCREASE",
	}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(env.router, http.MethodPost, "/api/inventory/adjustments", map[string]interface{}{
		"product_id": product.ID,
		"quantity":   1,
		"type":       "SHRINKAGE",
	}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(env.router, http.MethodGet, "/api/inventory/products/not-a-uuid/history", nil, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, 4, testutil.StockOf(t, env.db, product.ID))
}

func TestOrders_CreateAndTransition(t *testing.T) {
	env := newAPIEnv(t)
	_, token := env.login(t, model.RoleStaff, true, model.PermissionMatrix{model.ModuleOrders: model.LevelEdit})
	product := testutil.SeedProduct(t, env.db, "Mug", 3)

	body := map[string]interface{}{
		"customer_name":  "Ada",
		"customer_email": "ada@example.com",
		"items": []map[string]interface{}{
			{"product_id": product.ID, "quantity": 5},
		},
	}
	w := performRequest(env.router, http.MethodPost, "/api/orders", body, bearer(token))
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	var negative service.NegativeStockError
	decode(t, w, &negative)
	assert.Equal(t, 3, negative.Available)
	assert.Equal(t, 3, testutil.StockOf(t, env.db, product.ID))

	body["items"] = []map[string]interface{}{{"product_id": product.ID, "quantity": 2}}
	w = performRequest(env.router, http.MethodPost, "/api/orders", body, bearer(token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order model.Order
	decode(t, w, &order)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, 1, testutil.StockOf(t, env.db, product.ID))

	w = performRequest(env.router, http.MethodPatch, "/api/orders/"+order.ID.String()+"/status",
		map[string]interface{}{"status": "shipped"}, bearer(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &order)
	assert.Equal(t, model.OrderStatusShipped, order.Status)
	assert.NotNil(t, order.ShippedAt)

	w = performRequest(env.router, http.MethodPatch, "/api/orders/"+order.ID.String()+"/status",
		map[string]interface{}{"status": "CANCELLED"}, bearer(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 3, testutil.StockOf(t, env.db, product.ID))

	w = performRequest(env.router, http.MethodGet, "/api/orders/number/"+order.OrderNumber, nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &order)
	assert.Len(t, order.StatusHistory, 3)
}

func TestOrders_NotFound(t *testing.T) {
	env := newAPIEnv(t)
	_, token := env.login(t, model.RoleAdmin, true, nil)

	w := performRequest(env.router, http.MethodGet, "/api/orders/"+uuid.NewString(), nil, bearer(token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(env.router, http.MethodPatch, "/api/orders/"+uuid.NewString()+"/status",
		map[string]interface{}{"status": "SHIPPED"}, bearer(token))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(env.router, http.MethodGet, "/api/orders/number/ORD-20260101-000000", nil, bearer(token))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAccounts_AdminManagesStaff(t *testing.T) {
	env := newAPIEnv(t)
	_, adminToken := env.login(t, model.RoleAdmin, true, nil)
	staff, staffToken := env.login(t, model.RoleStaff, false, nil)

	w := performRequest(env.router, http.MethodPatch, "/api/accounts/"+staff.ID.String()+"/approval",
		map[string]interface{}{"is_approved": true}, bearer(adminToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = performRequest(env.router, http.MethodPut, "/api/accounts/"+staff.ID.String()+"/permissions",
		map[string]interface{}{"permissions": map[string]string{"inventory": "edit", "users": "view"}}, bearer(adminToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated service.AccountResponse
	decode(t, w, &updated)
	assert.Equal(t, model.LevelEdit, updated.EffectivePermissions[model.ModuleInventory])
	assert.Equal(t, model.LevelView, updated.EffectivePermissions[model.ModuleUsers])

	for _, perms := range []map[string]string{{"users": "edit"}, {"warehouse": "edit"}, {"orders": "all"}} {
		w = performRequest(env.router, http.MethodPut, "/api/accounts/"+staff.ID.String()+"/permissions",
			map[string]interface{}{"permissions": perms}, bearer(adminToken))
		assert.Equal(t, http.StatusBadRequest, w.Code, perms)
	}

	// the staff member now reaches inventory but still not the account surface
	w = performRequest(env.router, http.MethodGet, "/api/inventory/summary", nil, bearer(staffToken))
	assert.Equal(t, http.StatusOK, w.Code)
	w = performRequest(env.router, http.MethodGet, "/api/accounts", nil, bearer(staffToken))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = performRequest(env.router, http.MethodGet, "/api/audit-logs?entity_id="+staff.ID.String(), nil, bearer(adminToken))
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Total int64 `json:"total"`
	}
	decode(t, w, &logs)
	assert.EqualValues(t, 2, logs.Total)
}

func TestStatistics(t *testing.T) {
	env := newAPIEnv(t)
	_, token := env.login(t, model.RoleAdmin, true, nil)
	testutil.SeedProduct(t, env.db, "Plate", 0)

	w := performRequest(env.router, http.MethodGet, "/api/statistics?days=7", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stats DashboardStatistics
	decode(t, w, &stats)
	require.NotNil(t, stats.Stock)
	assert.EqualValues(t, 1, stats.Stock.OutOfStock)
	require.NotNil(t, stats.Sales)
	assert.Zero(t, stats.Sales.TotalOrders)

	w = performRequest(env.router, http.MethodGet, "/api/statistics?days=abc", nil, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(env.router, http.MethodGet, "/api/statistics/sales?start_date=2026-01-01&end_date=2026-01-31&limit=3", nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sales model.SalesReport
	decode(t, w, &sales)
	assert.Empty(t, sales.TopProducts)

	w = performRequest(env.router, http.MethodGet, "/api/statistics/sales?start_date=01/02/2026", nil, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(env.router, http.MethodGet, "/api/statistics/sales?start_date=2026-02-01&end_date=2026-01-01", nil, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
