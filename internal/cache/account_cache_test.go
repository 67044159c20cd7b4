package cache

import (
	"context"
	"testing"

	"backoffice/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountCache_NilClientIsNoop(t *testing.T) {
	c := NewAccountCache(nil, 0)
	ctx := context.Background()

	c.Set(ctx, &model.Account{SubjectID: "sub-1"})
	_, ok := c.Get(ctx, "sub-1")
	assert.False(t, ok)
	c.Invalidate(ctx, "sub-1")

	var nilCache *AccountCache
	_, ok = nilCache.Get(ctx, "sub-1")
	assert.False(t, ok)
}

func TestConnect_EmptyAddrDisablesCache(t *testing.T) {
	rdb, err := Connect(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Nil(t, rdb)
}

func TestSubjectKey(t *testing.T) {
	assert.Equal(t, "account:subject:abc", subjectKey("abc"))
}
