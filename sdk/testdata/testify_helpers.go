package testdata

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestSuite provides common test setup and utilities
type TestSuite struct {
	T          *testing.T
	Server     *MockServer
	BaseURL    string
	Context    context.Context
	CancelFunc context.CancelFunc
}

// NewTestSuite creates a new test suite with a mock server accepting accessKey.
// The server and context are released with t.Cleanup.
func NewTestSuite(t *testing.T, accessKey string) *TestSuite {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	server := NewMockServer(accessKey)

	ts := &TestSuite{
		T:          t,
		Server:     server,
		BaseURL:    server.URL,
		Context:    ctx,
		CancelFunc: cancel,
	}
	t.Cleanup(ts.Cleanup)
	return ts
}

// Cleanup cleans up test resources
func (ts *TestSuite) Cleanup() {
	if ts.CancelFunc != nil {
		ts.CancelFunc()
	}
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// ConcurrentTestHelper helps with concurrent testing
type ConcurrentTestHelper struct {
	t         *testing.T
	wg        sync.WaitGroup
	errors    []error
	errorsMux sync.Mutex
}

// NewConcurrentTestHelper creates a new concurrent test helper
func NewConcurrentTestHelper(t *testing.T) *ConcurrentTestHelper {
	return &ConcurrentTestHelper{
		t:      t,
		errors: make([]error, 0),
	}
}

// Run executes a function concurrently
func (cth *ConcurrentTestHelper) Run(numGoroutines int, fn func(id int) error) {
	cth.wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer cth.wg.Done()

			if err := fn(id); err != nil {
				cth.errorsMux.Lock()
				cth.errors = append(cth.errors, fmt.Errorf("goroutine %d: %w", id, err))
				cth.errorsMux.Unlock()
			}
		}(i)
	}
}

// Wait waits for all goroutines to complete and checks for errors
func (cth *ConcurrentTestHelper) Wait() {
	cth.wg.Wait()

	cth.errorsMux.Lock()
	defer cth.errorsMux.Unlock()

	if len(cth.errors) > 0 {
		for _, err := range cth.errors {
			cth.t.Error(err)
		}
		cth.t.Fatalf("Concurrent test failed with %d errors", len(cth.errors))
	}
}
