// Package testing holds helpers shared by the package tests.
//
// t.Fatal and t.FailNow only stop the calling goroutine, so a helper
// goroutine that fails that way leaves the test hanging. GoroutineTest
// collects errors from goroutines instead and reports them on Wait.
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest runs functions in goroutines and reports their errors.
//
//	gt := testutil.NewGoroutineTest(t)
//	gt.Go(func() error {
//	    _, err := store.Append(ctx, rec)
//	    return err
//	})
//	gt.Wait()
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	errors chan error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a GoroutineTest whose context lives until Wait.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return newGoroutineTest(t, ctx, cancel)
}

// NewGoroutineTestWithTimeout creates a GoroutineTest whose context expires
// after timeout.
func NewGoroutineTestWithTimeout(t *testing.T, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return newGoroutineTest(t, ctx, cancel)
}

func newGoroutineTest(t *testing.T, ctx context.Context, cancel context.CancelFunc) *GoroutineTest {
	return &GoroutineTest{
		t:      t,
		errors: make(chan error, 100),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go runs fn in a goroutine. A returned error fails the test on Wait.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.GoWithContext(func(context.Context) error { return fn() })
}

// GoWithContext runs fn in a goroutine with the test context.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			select {
			case gt.errors <- err:
			default:
				gt.t.Logf("error channel full, dropping: %v", err)
			}
		}
	}()
}

// Wait blocks until every goroutine returns, then fails the test if any of
// them reported an error.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()
	gt.wg.Wait()
	gt.cancel()
	close(gt.errors)

	var errs []error
	for err := range gt.errors {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return
	}
	for i, err := range errs {
		gt.t.Errorf("goroutine error [%d/%d]: %v", i+1, len(errs), err)
	}
	gt.t.FailNow()
}

// Context returns the test context.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// Cancel cancels the test context.
func (gt *GoroutineTest) Cancel() {
	gt.cancel()
}

// =============================================================================
// Assertions and Polling
// =============================================================================

// AssertEqual returns an error if got != want. It is meant for goroutines,
// where t.Fatal cannot be used.
func AssertEqual[T comparable](got, want T, msg string) error {
	if got != want {
		return fmt.Errorf("%s: expected %v, got %v", msg, want, got)
	}
	return nil
}

// Eventually polls condition every interval until it holds or timeout
// passes.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v", timeout)
}
