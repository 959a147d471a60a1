package identity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDirectory_CreateAndFind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := NewMemoryDirectory()

	_, err := d.Find(ctx, "alice")
	assert.True(t, IsNotFound(err))

	u, err := d.Create(ctx, "alice", "$argon2id$hash", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = d.Create(ctx, "alice", "$argon2id$other", time.Now())
	assert.True(t, IsConflict(err))

	// Usernames are exact keys.
	_, err = d.Create(ctx, "Alice", "$argon2id$hash", time.Now())
	require.NoError(t, err)

	_, err = d.Create(ctx, "bob", "", time.Now())
	assert.True(t, IsInvalidInput(err))
}

func TestMemoryDirectory_TokenIDsAreASet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := NewMemoryDirectory()
	_, err := d.Create(ctx, "alice", "h", time.Now())
	require.NoError(t, err)

	changed, err := d.AddTokenID(ctx, "alice", "t1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = d.AddTokenID(ctx, "alice", "t1")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = d.RemoveTokenID(ctx, "alice", "t1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = d.RemoveTokenID(ctx, "alice", "t1")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = d.AddTokenID(ctx, "ghost", "t1")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestMemoryDirectory_FindReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := NewMemoryDirectory()
	_, err := d.Create(ctx, "alice", "h", time.Now())
	require.NoError(t, err)
	_, err = d.AddTokenID(ctx, "alice", "t1")
	require.NoError(t, err)

	u, err := d.Find(ctx, "alice")
	require.NoError(t, err)
	u.TokenIDs[0] = "mutated"

	again, err := d.Find(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, again.TokenIDs)
}

func TestMemoryDirectory_Chats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := NewMemoryDirectory()
	_, err := d.Create(ctx, "alice", "h", time.Now())
	require.NoError(t, err)

	chats, err := d.Chats(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, chats)

	for _, peer := range []string{"bob", "carol", "bob"} {
		_, err := d.AddChat(ctx, "alice", peer)
		require.NoError(t, err)
	}

	chats, err = d.Chats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, chats)

	_, err = d.Chats(ctx, "ghost")
	assert.True(t, IsNotFound(err))
}

func TestMemoryDirectory_ConcurrentMutationsAreNotLost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := NewMemoryDirectory()
	_, err := d.Create(ctx, "alice", "h", time.Now())
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			changed, err := d.AddTokenID(ctx, "alice", fmt.Sprintf("t%d", i))
			assert.NoError(t, err)
			assert.True(t, changed)
		}(i)
	}
	wg.Wait()

	u, err := d.Find(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, u.TokenIDs, n)

	// Racing removers of the same id: exactly one wins.
	var wins sync.WaitGroup
	results := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wins.Add(1)
		go func() {
			defer wins.Done()
			changed, _ := d.RemoveTokenID(ctx, "alice", "t0")
			results <- changed
		}()
	}
	wins.Wait()
	close(results)

	won := 0
	for r := range results {
		if r {
			won++
		}
	}
	assert.Equal(t, 1, won)
}
