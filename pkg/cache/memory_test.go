package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok := m.Get(ctx, "missing")
	assert.False(t, ok)

	m.Set(ctx, "k", "v", 0)

	value, ok := m.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", value)

	m.Set(ctx, "k", "v2", 0)

	value, ok = m.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v2", value)
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	m.Set(ctx, "k", "v", time.Minute)

	_, ok := m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(61 * time.Second)

	_, ok = m.Get(ctx, "k")
	assert.False(t, ok)

	// A zero TTL never expires.
	m.Set(ctx, "forever", "v", 0)
	now = now.Add(24 * time.Hour)

	_, ok = m.Get(ctx, "forever")
	assert.True(t, ok)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "k", "v", 0)
	m.Delete(ctx, "k")

	_, ok := m.Get(ctx, "k")
	assert.False(t, ok)

	// Deleting an absent key is a no-op.
	m.Delete(ctx, "k")
}

func TestMemory_Invalidate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.Set(ctx, "workflow:role:alice", "manager", 0)
	m.Set(ctx, "workflow:role:bob", "developer", 0)
	m.Set(ctx, "automation:daily:rule-1:2026-03-02", "3", 0)

	m.Invalidate(ctx, "workflow:role:")

	_, ok := m.Get(ctx, "workflow:role:alice")
	assert.False(t, ok)

	_, ok = m.Get(ctx, "workflow:role:bob")
	assert.False(t, ok)

	value, ok := m.Get(ctx, "automation:daily:rule-1:2026-03-02")
	assert.True(t, ok)
	assert.Equal(t, "3", value)
}
