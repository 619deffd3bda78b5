package controller

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestExecutorRunsInSubmissionOrder(t *testing.T) {
	e := newExecutor(zerolog.Nop())
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, e.submit("t", func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	e.close()
	<-e.exited
	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestExecutorSurvivesPanics(t *testing.T) {
	e := newExecutor(zerolog.Nop())
	ran := make(chan struct{})
	e.submit("bad", func() { panic("boom") })
	e.submit("good", func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task after panic never ran")
	}
	e.close()
	<-e.exited
}

func TestExecutorRefusesAfterClose(t *testing.T) {
	e := newExecutor(zerolog.Nop())
	block := make(chan struct{})
	e.submit("block", func() { <-block })
	e.submit("queued", func() {})
	e.close()
	require.False(t, e.submit("late", func() {}))

	select {
	case <-e.exited:
		t.Fatal("exited with queued work")
	default:
	}
	close(block)
	<-e.exited
	require.Zero(t, e.len())
}
