package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zenohpico/zenohpico-go/internal/logext"
)

func testBackend(t *testing.T) *logext.Backend {
	b, err := logext.New(nil, "CRITICAL", true)
	require.NoError(t, err)
	return b
}

func TestSchedulerRunsTaskAfterDelay(t *testing.T) {
	backend := testBackend(t)
	done := make(chan string, 1)
	s := New(func(v interface{}) {
		done <- v.(string)
	}, backend, "test")

	s.Add(10*time.Millisecond, "hello")

	select {
	case v := <-done:
		require.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("task did not run in time")
	}
}

func TestSchedulerOrdersByDeadline(t *testing.T) {
	backend := testBackend(t)
	var mu chan int = make(chan int, 2)
	s := New(func(v interface{}) {
		mu <- v.(int)
	}, backend, "test")

	s.Add(40*time.Millisecond, 2)
	s.Add(10*time.Millisecond, 1)

	first := <-mu
	second := <-mu
	require.Equal(t, 1, first)
	require.Equal(t, 2, second)
}

func TestSchedulerShutdownStopsPendingTimer(t *testing.T) {
	backend := testBackend(t)
	ran := false
	s := New(func(v interface{}) {
		ran = true
	}, backend, "test")

	s.Add(time.Hour, "never")
	s.Shutdown()
	time.Sleep(10 * time.Millisecond)
	require.False(t, ran)
}
