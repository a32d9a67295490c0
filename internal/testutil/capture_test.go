package testutil

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/settle/internal/logging"
)

func TestCapture_FlattensAttrs(t *testing.T) {
	c := NewCapture()
	log := c.Logger().With(logging.ComponentKey, "tb.drv")

	log.Error("residual", logging.KindKey, logging.KindResidualWork, "index", 2)

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, slog.LevelError, entries[0].Level)
	assert.Equal(t, "tb.drv", entries[0].Component())
	assert.Equal(t, logging.KindResidualWork, entries[0].Kind())
	assert.Equal(t, int64(2), entries[0].Attrs["index"])
}

func TestCapture_GroupsAreFlattened(t *testing.T) {
	c := NewCapture()
	c.Logger().WithGroup("q").Info("push", "len", 1)

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Attrs["q.len"])
}

func TestCapture_Filters(t *testing.T) {
	c := NewCapture()
	log := c.Logger()
	log.Info("a")
	log.Warn("b", logging.KindKey, logging.KindObjectionsOutstanding)
	log.Error("c")

	assert.Len(t, c.AtLeast(slog.LevelWarn), 2)
	assert.Len(t, c.Kind(logging.KindObjectionsOutstanding), 1)

	c.Reset()
	assert.Empty(t, c.Entries())
}

func TestCapture_ConcurrentUse(t *testing.T) {
	c := NewCapture()
	log := c.Logger()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				log.Info("tick")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, c.Entries(), 1000)
}
