package steward

import "time"

// Clock abstracts time for deterministic testing of threshold logic.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }
