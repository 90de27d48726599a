package sagastate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trigintafaces/excalibur-dispatch/internal/platform/cache"
)

func TestLocalCache_SetGetInvalidate(t *testing.T) {
	lc := NewLocalCache(cache.CacheConfig{DefaultTTL: time.Minute})

	_, ok := lc.get("s1")
	require.False(t, ok)

	lc.set("s1", Instance{SagaID: "s1", SagaType: "T"}, time.Minute)
	inst, ok := lc.get("s1")
	require.True(t, ok)
	require.Equal(t, "T", inst.SagaType)

	lc.invalidate("s1")
	_, ok = lc.get("s1")
	require.False(t, ok)
}
