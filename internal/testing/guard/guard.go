// Package guard flips the process into test mode when blank-imported by tests,
// so binaries under test skip database and Redis startup.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FULFILLMENT_TEST_MODE") == "" {
			_ = os.Setenv("FULFILLMENT_TEST_MODE", "1")
		}
	})
}
