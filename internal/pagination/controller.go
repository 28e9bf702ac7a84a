// Package pagination holds the page position state machine that sits
// between a PageSet and the flip widget.
//
// The controller only guarantees the zero-based invariant
// 0 <= CurrentIndex <= TotalCount-1 (or the empty state). Out-of-range
// requests are clamped, never reported as errors.
package pagination

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidStep is returned by New for steps other than 1 or 2.
var ErrInvalidStep = errors.New("step must be 1 (single page) or 2 (spread)")

// State is a snapshot of the controller. The Can* fields are derived on
// every read and never stored.
type State struct {
	CurrentIndex int  `json:"current_index"`
	TotalCount   int  `json:"total_count"`
	Step         int  `json:"step"`
	CanGoPrev    bool `json:"can_go_prev"`
	CanGoNext    bool `json:"can_go_next"`
	Flipping     bool `json:"flipping"`
}

// Empty reports whether no pages are loaded.
func (s State) Empty() bool { return s.TotalCount == 0 }

// Options configures a Controller.
type Options struct {
	// Step is 1 for single-page display, 2 for two-up spreads.
	Step int
	// Settle is the debounce window after Next or Prev. Zero disables it.
	Settle time.Duration
	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// Controller tracks the current page. It is safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	step    int
	settle  time.Duration
	now     func() time.Time
	current int
	total   int
	until   time.Time
}

// New creates an empty controller.
func New(opts Options) (*Controller, error) {
	if opts.Step == 0 {
		opts.Step = 1
	}
	if opts.Step != 1 && opts.Step != 2 {
		return nil, ErrInvalidStep
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{step: opts.Step, settle: opts.Settle, now: opts.Now}, nil
}

// Step returns the configured step.
func (c *Controller) Step() int { return c.step }

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Load resets to the first page of a set of total pages, or to empty.
func (c *Controller) Load(total int) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if total < 0 {
		total = 0
	}
	c.total = total
	c.current = 0
	c.until = time.Time{}
	return c.stateLocked()
}

// Next advances by one step. It reports whether the index moved; at the
// last page or inside the settle window it is a no-op.
func (c *Controller) Next() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.flippingLocked() || c.current+c.step >= c.total {
		return c.stateLocked(), false
	}
	c.current += c.step
	c.startSettleLocked()
	return c.stateLocked(), true
}

// Prev moves back by one step, clamping at zero.
func (c *Controller) Prev() (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.flippingLocked() || c.current == 0 {
		return c.stateLocked(), false
	}
	c.current = max(c.current-c.step, 0)
	c.startSettleLocked()
	return c.stateLocked(), true
}

// ExternalSync adopts the index the widget resolved, clamped to the loaded
// range. moved reports whether the current index changed; repeating the
// same report is a no-op.
func (c *Controller) ExternalSync(reported int) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.total == 0 {
		return c.stateLocked(), false
	}
	before := c.current
	c.current = min(max(reported, 0), c.total-1)
	return c.stateLocked(), c.current != before
}

func (c *Controller) flippingLocked() bool {
	return !c.until.IsZero() && c.now().Before(c.until)
}

func (c *Controller) startSettleLocked() {
	if c.settle > 0 {
		c.until = c.now().Add(c.settle)
	}
}

func (c *Controller) stateLocked() State {
	return State{
		CurrentIndex: c.current,
		TotalCount:   c.total,
		Step:         c.step,
		CanGoPrev:    c.current > 0,
		CanGoNext:    c.current+c.step < c.total,
		Flipping:     c.flippingLocked(),
	}
}
