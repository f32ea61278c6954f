// Package guard switches the binaries into test mode when imported by a test.
package guard

import "os"

// EnvTestMode is read by app.InTestMode.
const EnvTestMode = "ODYSSEY_TEST_MODE"

func init() {
	if os.Getenv(EnvTestMode) == "" {
		_ = os.Setenv(EnvTestMode, "1")
	}
}
