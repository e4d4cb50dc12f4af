package controller

import "sync/atomic"

// Pause is the manual hold flag the controller polls between pages. A nil
// Pause is never set.
type Pause struct {
	flag atomic.Bool
}

// NewPause returns an unset flag.
func NewPause() *Pause {
	return &Pause{}
}

// Set pauses the crawl before the next page starts.
func (p *Pause) Set() {
	p.flag.Store(true)
}

// Clear lets the crawl resume.
func (p *Pause) Clear() {
	p.flag.Store(false)
}

// IsSet reports whether the crawl should idle.
func (p *Pause) IsSet() bool {
	return p != nil && p.flag.Load()
}
