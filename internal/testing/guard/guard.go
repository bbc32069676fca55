// Package guard flips the application into test mode as a side effect of
// being imported, keeping runtime side effects out of unit tests.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ROADLINE_TEST_MODE") == "" {
			_ = os.Setenv("ROADLINE_TEST_MODE", "1")
		}
	})
}
