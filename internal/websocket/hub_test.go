package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/internal/cache"
	"backoffice/internal/identity"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "ws-test-secret"

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish("stock.adjusted", map[string]int{"i": i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
}

func newServer(t *testing.T) (*httptest.Server, *Hub, func(role model.Role, approved bool) string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	accounts := service.NewAccountService(
		repository.NewAccountRepository(db),
		repository.NewAuditRepository(db),
		repository.NewTransactionManager(db, 0),
		cache.NewAccountCache(nil, 0),
	)
	verifier := identity.NewJWTVerifier(testSecret, "")
	evaluator := service.NewEvaluator()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, verifier, accounts, evaluator) })
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	tokenFor := func(role model.Role, approved bool) string {
		account := testutil.SeedAccount(t, db, role, approved, nil)
		token, err := identity.Issue(testSecret, "", identity.Identity{SubjectID: account.SubjectID, Email: account.Email}, time.Hour)
		require.NoError(t, err)
		return token
	}
	return srv, hub, tokenFor
}

func wsURL(srv *httptest.Server, token string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func TestServeWs_Rejections(t *testing.T) {
	srv, _, tokenFor := newServer(t)

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"customer", tokenFor(model.RoleCustomer, true), http.StatusForbidden},
		{"pending staff", tokenFor(model.RoleStaff, false), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tc.token), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestServeWs_DeliversPublishedEvents(t *testing.T) {
	srv, hub, tokenFor := newServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, tokenFor(model.RoleStaff, true)), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("order.created", map[string]string{"order_number": "ORD-20260101-ABCDEF"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "order.created", msg.Event)
	assert.Equal(t, "ORD-20260101-ABCDEF", msg.Data["order_number"])
}
