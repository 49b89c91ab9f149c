package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterPoolEnforcesBurst(t *testing.T) {
	pool := newLimiterPool("public", 3)

	for i := 0; i < 3; i++ {
		assert.True(t, pool.allow("10.0.0.1"), "request %d within burst", i)
	}

	assert.False(t, pool.allow("10.0.0.1"))

	// Other clients are tracked independently.
	assert.True(t, pool.allow("10.0.0.2"))
}

func TestLimiterPoolSweepsIdleClients(t *testing.T) {
	pool := newLimiterPool("public", 3)

	require.True(t, pool.allow("10.0.0.1"))
	require.True(t, pool.allow("10.0.0.2"))

	// Age one client past the idle cutoff and force the next access to
	// sweep.
	pool.mu.Lock()
	pool.clients["10.0.0.1"].lastSeen = time.Now().Add(-2 * limiterIdleAfter)
	pool.lastSweep = time.Now().Add(-2 * limiterSweepEvery)
	pool.mu.Unlock()

	require.True(t, pool.allow("10.0.0.2"))

	pool.mu.Lock()
	defer pool.mu.Unlock()

	_, swept := pool.clients["10.0.0.1"]
	assert.False(t, swept)
	_, kept := pool.clients["10.0.0.2"]
	assert.True(t, kept)
}

func TestClientAddr(t *testing.T) {
	r, err := http.NewRequest(http.MethodGet, "/api/v1/health", nil)
	require.NoError(t, err)

	r.RemoteAddr = "192.0.2.10:4123"
	assert.Equal(t, "192.0.2.10", clientAddr(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 192.0.2.10")
	assert.Equal(t, "203.0.113.7", clientAddr(r))
}
