package service

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestKeyedLock_SerializesSameKey(t *testing.T) {
	k := newKeyedLock()

	var (
		wg      sync.WaitGroup
		active  atomic.Int32
		overlap atomic.Bool
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("s-1")
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			active.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if overlap.Load() {
		t.Error("Две горутины одновременно держали один ключ")
	}
	if n := k.size(); n != 0 {
		t.Errorf("Ключей после освобождения: %d, ожидалось 0", n)
	}
}

func TestKeyedLock_IndependentKeys(t *testing.T) {
	k := newKeyedLock()

	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()
	<-done

	if n := k.size(); n != 1 {
		t.Errorf("Ключей: %d, ожидался 1", n)
	}
	unlockA()
	if n := k.size(); n != 0 {
		t.Errorf("Ключей: %d, ожидалось 0", n)
	}
}
