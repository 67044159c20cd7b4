package repository

import (
	"context"

	"backoffice/internal/database"

	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "gorm_tx"

// txState is what RunInTx stores in the context: the open transaction and the
// callbacks waiting for it to commit.
type txState struct {
	tx          *gorm.DB
	afterCommit []func()
}

// TransactionManager manages database transactions via context injection.
type TransactionManager interface {
	// RunInTx runs fn inside a transaction. When ctx already carries one, fn
	// joins it and the outermost call owns commit, rollback and retries.
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db         *gorm.DB
	maxRetries int
}

func NewTransactionManager(db *gorm.DB, maxRetries int) TransactionManager {
	return &transactionManager{db: db, maxRetries: maxRetries}
}

func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*txState); ok {
		return fn(ctx)
	}

	var committed *txState
	err := database.WithRetry(ctx, t.maxRetries, func() error {
		state := &txState{}
		err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			state.tx = tx
			return fn(context.WithValue(ctx, txKey, state))
		})
		if err == nil {
			committed = state
		}
		return err
	})
	if err != nil {
		return err
	}

	for _, hook := range committed.afterCommit {
		hook()
	}
	return nil
}

// AfterCommit defers hook until the transaction carried by ctx commits. A
// rolled back or retried attempt drops its hooks. Without a transaction the
// hook runs immediately.
func AfterCommit(ctx context.Context, hook func()) {
	if state, ok := ctx.Value(txKey).(*txState); ok {
		state.afterCommit = append(state.afterCommit, hook)
		return
	}
	hook()
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey).(*txState)
	return ok
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if state, ok := ctx.Value(txKey).(*txState); ok {
		return state.tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
