// Package filter provides admission checks for queue additions.
package filter

import (
	"github.com/melba-bot/melba/internal/domain/track"
)

// Result represents the outcome of an admission check.
type Result struct {
	Accepted bool
	Reason   string // e.g. "duplicate_track", "duration_limit"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given reason.
func Reject(reason string) Result {
	return Result{Accepted: false, Reason: reason}
}

// Filter is one admission check applied to an item before it joins the
// queue.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Check decides whether the item may join the given queue.
	Check(item *track.QueueItem, queued []*track.QueueItem) Result
}

// Chain executes filters in sequence, stopping at the first rejection.
type Chain struct {
	filters []Filter
}

// NewChain creates a chain of the given filters.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Add appends a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Check runs every filter against the item.
func (c *Chain) Check(item *track.QueueItem, queued []*track.QueueItem) Result {
	for _, f := range c.filters {
		if result := f.Check(item, queued); !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
