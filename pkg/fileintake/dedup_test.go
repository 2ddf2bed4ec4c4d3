package fileintake

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisambiguateName(t *testing.T) {
	assert.Equal(t, "report (1).pdf", disambiguateName("report.pdf", 1))
	assert.Equal(t, "report (2).pdf", disambiguateName("report.pdf", 2))
	assert.Equal(t, "notes (1)", disambiguateName("notes", 1))
	assert.Equal(t, "a.b (3).pdf", disambiguateName("a.b.pdf", 3))
}

func TestKeyedMutex_SerializesPerKey(t *testing.T) {
	km := newKeyedMutex()

	const workers = 16
	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			km.Lock("same")
			counter++
			km.Unlock("same")
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
	// All waiters done: the lock entry must have been released.
	km.mu.Lock()
	assert.Empty(t, km.locks)
	km.mu.Unlock()
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	km.Lock("a")
	acquired := make(chan struct{})
	go func() {
		km.Lock("b")
		close(acquired)
		km.Unlock("b")
	}()
	// A held "a" lock must not block "b".
	<-acquired
	km.Unlock("a")
}
