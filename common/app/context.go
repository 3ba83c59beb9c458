package app

import (
	"sync/atomic"
)

// Context carries process-wide state that components receive at
// construction instead of reaching for globals.
type Context struct {
	quitting int32
}

func NewContext() *Context {
	return &Context{}
}

// Quit flips the process-wide quitting flag. Every worker loop checks
// IsQuitting in addition to its own cancellation.
func (s *Context) Quit() {
	atomic.StoreInt32(&s.quitting, 1)
}

func (s *Context) IsQuitting() bool {
	return atomic.LoadInt32(&s.quitting) != 0
}
