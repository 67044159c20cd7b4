//go:build integration

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"backoffice/internal/cache"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newPostgresEnv runs the services against a disposable PostgreSQL so that
// SELECT ... FOR UPDATE is exercised for real.
func newPostgresEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := database.NewConnection(ctx, config.DatabaseConfig{
		URL:             fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(db))

	productRepo := repository.NewProductRepository(db)
	variantRepo := repository.NewVariantRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db, 5)
	publisher := &recordingPublisher{}

	ledger := NewStockLedger(productRepo, variantRepo, repository.NewStockAdjustmentRepository(db), txManager, publisher, 10)
	return &testEnv{
		db:        db,
		publisher: publisher,
		ledger:    ledger,
		orders:    NewOrderService(repository.NewOrderRepository(db), productRepo, variantRepo, auditRepo, ledger, txManager, publisher),
		catalog:   NewCatalogService(productRepo, variantRepo, auditRepo, ledger, txManager),
		accounts:  NewAccountService(repository.NewAccountRepository(db), auditRepo, txManager, cache.NewAccountCache(nil, 0)),
		audit:     NewAuditService(auditRepo),
	}
}

func TestPostgres_ConcurrentOrdersNeverOversell(t *testing.T) {
	env := newPostgresEnv(t)
	p := testutil.SeedProduct(t, env.db, "limited", 10)

	const buyers = 25
	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.orders.Create(context.Background(), orderInput(CreateOrderItem{ProductID: &p.ID, Quantity: 1}))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		var neg *NegativeStockError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &neg):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, buyers-10, rejected)
	assert.Equal(t, 0, testutil.StockOf(t, env.db, p.ID))
	assert.EqualValues(t, 10, env.countRows(t, &model.Order{}))

	rows := env.adjustments(t)
	require.Len(t, rows, 10)
	seen := make([]int, 0, len(rows))
	for _, r := range rows {
		assert.Equal(t, model.AdjustmentSale, r.Type)
		assert.Equal(t, r.PreviousStock+r.Quantity, r.NewStock)
		seen = append(seen, r.NewStock)
	}
	sort.Ints(seen)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)
}

func TestPostgres_MultiItemOrdersDoNotDeadlock(t *testing.T) {
	env := newPostgresEnv(t)
	a := testutil.SeedProduct(t, env.db, "A", 50)
	b := testutil.SeedProduct(t, env.db, "B", 50)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		items := []CreateOrderItem{{ProductID: &a.ID, Quantity: 1}, {ProductID: &b.ID, Quantity: 1}}
		if i%2 == 1 {
			items[0], items[1] = items[1], items[0]
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.orders.Create(context.Background(), orderInput(items...))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 30, testutil.StockOf(t, env.db, a.ID))
	assert.Equal(t, 30, testutil.StockOf(t, env.db, b.ID))
	assert.EqualValues(t, 40, env.countRows(t, &model.StockAdjustment{}))
}

func TestPostgres_ConcurrentAdjustmentsKeepLedgerExact(t *testing.T) {
	env := newPostgresEnv(t)
	p := testutil.SeedProduct(t, env.db, "busy", 5)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		delta := 1
		if i%2 == 1 {
			delta = -1
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.Adjust(context.Background(), AdjustInput{
				Target: StockTarget{ProductID: &p.ID},
				Delta:  delta,
				Type:   model.AdjustmentCorrection,
				Actor:  clerk,
			})
			var neg *NegativeStockError
			if err != nil && !errors.As(err, &neg) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	var sum int
	for _, r := range env.adjustments(t) {
		require.Equal(t, r.PreviousStock+r.Quantity, r.NewStock)
		require.GreaterOrEqual(t, r.NewStock, 0)
		sum += r.Quantity
	}
	assert.Equal(t, 5+sum, testutil.StockOf(t, env.db, p.ID))
}

func TestPostgres_ConcurrentPermissionMergesKeepEveryGrant(t *testing.T) {
	env := newPostgresEnv(t)
	admin := testutil.SeedAccount(t, env.db, model.RoleAdmin, true, nil)
	target := testutil.SeedAccount(t, env.db, model.RoleStaff, true, nil)
	actor := ActorFrom(admin)

	var grants []model.Module
	for _, m := range model.Modules {
		if m != model.ModuleUsers {
			grants = append(grants, m)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(grants))
	for _, m := range grants {
		wg.Add(1)
		go func(m model.Module) {
			defer wg.Done()
			_, err := env.accounts.MergePermissions(context.Background(), actor, target.ID, map[string]string{string(m): "edit"})
			errs <- err
		}(m)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := env.accounts.Get(context.Background(), target.ID)
	require.NoError(t, err)
	for _, m := range grants {
		assert.Equal(t, model.LevelEdit, got.PermissionMatrix()[m], m)
	}
	assert.Equal(t, model.LevelNone, got.PermissionMatrix()[model.ModuleUsers])
}
