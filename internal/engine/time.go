package engine

import (
	"time"

	"github.com/Nireus79/Socrates2-sub000/internal/store"
)

// timeNow is a package-level variable for testability.
// Tests can replace this to control time in assertions.
var timeNow = time.Now

func now() string {
	return store.Format(timeNow())
}
