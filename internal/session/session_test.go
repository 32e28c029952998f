package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSerializer_SameSessionExcludes(t *testing.T) {
	s := NewSerializer()

	var mu sync.Mutex
	active := 0
	maxActive := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("s1")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestSerializer_DifferentSessionsRunConcurrently(t *testing.T) {
	s := NewSerializer()

	unlockA := s.Lock("a")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		unlockB := s.Lock("b")
		defer unlockB()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("session b blocked behind session a")
	}
}

func TestSerializer_CleansUpIdleEntries(t *testing.T) {
	s := NewSerializer()

	unlock := s.Lock("s1")
	unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.locks)
}
