package app

import (
	"os"
	"sync/atomic"
)

// testModeEnv is exported to test binaries by internal/testing/guard.
const testModeEnv = "ODYSSEY_TEST_MODE"

var testMode atomic.Pointer[bool]

// InTestMode reports whether the binaries should return before opening
// stores, Redis or listeners. The first answer is cached.
func InTestMode() bool {
	if on := testMode.Load(); on != nil {
		return *on
	}
	RefreshTestMode()
	return *testMode.Load()
}

// RefreshTestMode re-reads the environment.
func RefreshTestMode() {
	on := os.Getenv(testModeEnv) == "1"
	testMode.Store(&on)
}
