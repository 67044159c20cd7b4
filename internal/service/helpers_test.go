package service

import (
	"sync"
	"testing"

	"backoffice/internal/cache"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedEvent struct {
	Event string
	Data  interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(event string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Event: event, Data: data})
}

func (p *recordingPublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

type testEnv struct {
	db        *gorm.DB
	publisher *recordingPublisher
	ledger    StockLedger
	orders    OrderService
	catalog   CatalogService
	accounts  AccountService
	audit     AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)

	productRepo := repository.NewProductRepository(db)
	variantRepo := repository.NewVariantRepository(db)
	adjustmentRepo := repository.NewStockAdjustmentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	txManager := repository.NewTransactionManager(db, 0)
	publisher := &recordingPublisher{}

	ledger := NewStockLedger(productRepo, variantRepo, adjustmentRepo, txManager, publisher, 10)
	return &testEnv{
		db:        db,
		publisher: publisher,
		ledger:    ledger,
		orders:    NewOrderService(orderRepo, productRepo, variantRepo, auditRepo, ledger, txManager, publisher),
		catalog:   NewCatalogService(productRepo, variantRepo, auditRepo, ledger, txManager),
		accounts:  NewAccountService(accountRepo, auditRepo, txManager, cache.NewAccountCache(nil, 0)),
		audit:     NewAuditService(auditRepo),
	}
}

func (e *testEnv) adjustments(t *testing.T) []model.StockAdjustment {
	t.Helper()
	var rows []model.StockAdjustment
	require.NoError(t, e.db.Order("created_at asc").Find(&rows).Error)
	return rows
}

func (e *testEnv) countRows(t *testing.T, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Count(&n).Error)
	return n
}

// requireLedgerConsistent checks every row's arithmetic and that each counter
// equals the newest row written for it.
func (e *testEnv) requireLedgerConsistent(t *testing.T) {
	t.Helper()
	rows := e.adjustments(t)

	latestProduct := map[uuid.UUID]int{}
	latestVariant := map[uuid.UUID]int{}
	for _, r := range rows {
		require.Equal(t, r.PreviousStock+r.Quantity, r.NewStock, "row %s", r.ID)
		require.GreaterOrEqual(t, r.NewStock, 0, "row %s", r.ID)
		if r.VariantID != nil {
			latestVariant[*r.VariantID] = r.NewStock
		} else if r.ProductID != nil {
			latestProduct[*r.ProductID] = r.NewStock
		}
	}
	for id, stock := range latestProduct {
		require.Equal(t, stock, testutil.StockOf(t, e.db, id), "product %s", id)
	}
	for id, stock := range latestVariant {
		require.Equal(t, stock, testutil.VariantStockOf(t, e.db, id), "variant %s", id)
	}
}

func ptr[T any](v T) *T { return &v }
