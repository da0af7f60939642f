package stage

import (
	"errors"
	"sync/atomic"
)

// ErrCancelled is returned by stages that observed a cancellation request at
// a checkpoint.
var ErrCancelled = errors.New("job cancelled")

// Token is a cooperative cancellation flag shared by every stage of one job.
// Stages check it at entry and once per loop iteration; in-flight tool calls
// are never interrupted. The zero value is ready to use and a nil Token is
// never cancelled.
type Token struct {
	cancelled atomic.Bool
	poll      func() bool
}

// NewToken returns an uncancelled token.
func NewToken() *Token {
	return &Token{}
}

// NewWatchedToken returns a token that also consults poll on every Check
// until it is cancelled. poll reports a cancellation requested elsewhere,
// such as another process writing the job's cancel flag.
func NewWatchedToken(poll func() bool) *Token {
	return &Token{poll: poll}
}

// Cancel marks the token. Repeated calls are no-ops.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	return t.cancelled.Load()
}

// Check returns ErrCancelled once the token is cancelled.
func (t *Token) Check() error {
	if t == nil {
		return nil
	}
	if !t.Cancelled() && t.poll != nil && t.poll() {
		t.Cancel()
	}
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}
