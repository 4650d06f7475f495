package disposable_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/poltergeist/taskmon/pkg/disposable"
)

func TestOnce_ReleasesExactlyOnce(t *testing.T) {
	var once disposable.Once
	var calls atomic.Int32
	wantErr := errors.New("close failed")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := once.Do(func() error {
				calls.Add(1)
				return wantErr
			})
			if !errors.Is(err, wantErr) {
				t.Errorf("Do err=%v, want %v", err, wantErr)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("release called %d times, want 1", got)
	}
	if !once.Disposed() {
		t.Fatal("expected Disposed to be true")
	}
}

func TestOnce_ZeroValueNotDisposed(t *testing.T) {
	var once disposable.Once
	if once.Disposed() {
		t.Fatal("zero value must not be disposed")
	}
	if err := once.Do(nil); err != nil {
		t.Fatalf("Do(nil) err=%v", err)
	}
	if !once.Disposed() {
		t.Fatal("expected Disposed after Do(nil)")
	}
}
