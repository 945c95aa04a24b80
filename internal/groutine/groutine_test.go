package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoClosesDoneWhenFnReturns(t *testing.T) {
	ran := make(chan struct{})
	done := Go(nil, "worker", func(ctx context.Context) {
		close(ran)
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("fn never ran")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done never closed")
	}
}

func TestNameTravelsInContext(t *testing.T) {
	got := make(chan string, 1)
	done := Go(context.Background(), "signal-dispatcher", func(ctx context.Context) {
		got <- Name(ctx)
	})
	<-done
	assert.Equal(t, "signal-dispatcher", <-got)
}

func TestNameOutsideGo(t *testing.T) {
	assert.Empty(t, Name(nil))
	assert.Empty(t, Name(context.Background()))
}

func TestGoNilParentContext(t *testing.T) {
	done := Go(nil, "orphan", func(ctx context.Context) {
		require.NotNil(t, ctx)
	})
	<-done
}
