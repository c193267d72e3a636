package round

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/dumfing/skirmish/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestContext_Defaults(t *testing.T) {
	ctx := NewContext()

	assert.Equal(t, "No round loaded", ctx.GetRound().ServerName)
	assert.Equal(t, "No level loaded", ctx.GetLevel().Name)
	assert.Equal(t, "LOBBY", ctx.State())
}

func TestContext_SetRound(t *testing.T) {
	ctx := NewContext()
	ctx.SetRound(&core.Round{ID: 4, ServerName: "arena"}, &core.Level{Name: "Fort Hill"})
	ctx.SetState("PLAYING")

	attrs := ctx.LogAttrs()
	assert.Equal(t, []slog.Attr{
		slog.Uint64("id", 4),
		slog.String("level", "Fort Hill"),
		slog.String("state", "PLAYING"),
	}, attrs)
}

func TestContext_ThreadSafe(t *testing.T) {
	ctx := NewContext()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(id uint) {
			defer wg.Done()
			ctx.SetRound(&core.Round{ID: id}, &core.Level{Name: "x"})
		}(uint(i))
		go func() {
			defer wg.Done()
			_ = ctx.LogAttrs()
			_ = ctx.GetRound()
		}()
	}
	wg.Wait()
}
