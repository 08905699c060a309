package window

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Boundary controls how consecutive windows meet.
type Boundary string

const (
	// BoundaryOverlap starts the next window on the day the previous one
	// began, so the shared day is fetched twice.
	BoundaryOverlap Boundary = "overlap"
	// BoundaryContiguous ends the next window one day before the previous
	// window began.
	BoundaryContiguous Boundary = "contiguous"
)

// ParseBoundary normalizes a configured boundary mode. Empty selects overlap.
func ParseBoundary(value string) (Boundary, error) {
	switch Boundary(strings.ToLower(strings.TrimSpace(value))) {
	case "", BoundaryOverlap:
		return BoundaryOverlap, nil
	case BoundaryContiguous:
		return BoundaryContiguous, nil
	default:
		return "", fmt.Errorf("invalid window boundary %q", value)
	}
}

// Window is one upstream call's date range.
type Window struct {
	From time.Time
	To   time.Time
	Days int
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s (%dd)", w.From.Format(time.DateOnly), w.To.Format(time.DateOnly), w.Days)
}

// Plan describes a backward walk from Until covering TotalDays.
type Plan struct {
	TotalDays int
	// MaxDays is the upstream ceiling for one call.
	MaxDays int
	// Step optionally narrows windows below MaxDays.
	Step        int
	Until       time.Time
	Boundary    Boundary
	StopOnEmpty bool
}

// Span returns the per-window day count.
func (p Plan) Span() int {
	span := p.MaxDays
	if p.Step > 0 && (span <= 0 || p.Step < span) {
		span = p.Step
	}
	if span <= 0 || span > p.TotalDays {
		span = p.TotalDays
	}
	return span
}

// Calls returns how many windows the plan issues at most.
func (p Plan) Calls() int {
	span := p.Span()
	if span <= 0 {
		return 0
	}
	return (p.TotalDays + span - 1) / span
}

// Windows lists the plan's windows, newest first. Every window spans Span
// days except the last, which takes whatever remains.
func (p Plan) Windows() []Window {
	calls := p.Calls()
	if calls == 0 {
		return nil
	}
	span := p.Span()
	windows := make([]Window, 0, calls)
	to := p.Until
	remaining := p.TotalDays
	for i := 0; i < calls; i++ {
		days := span
		if remaining < days {
			days = remaining
		}
		from := to.AddDate(0, 0, -days)
		windows = append(windows, Window{From: from, To: to, Days: days})
		remaining -= days

		to = from
		if p.Boundary == BoundaryContiguous {
			to = from.AddDate(0, 0, -1)
		}
	}
	return windows
}

// PageFunc processes one window and reports how many rows it saw.
type PageFunc func(ctx context.Context, w Window) (int, error)

// ErrorPolicy decides what a failed window means. Returning nil treats the
// window as an empty page; returning an error aborts the walk.
type ErrorPolicy func(w Window, err error) error

// Abort is the ErrorPolicy that propagates every error.
func Abort(_ Window, err error) error { return err }

// Each runs page over the plan's windows in order. It stops after the last
// window, on the first empty page when StopOnEmpty is set, or when policy
// returns an error. It returns the number of windows visited.
func Each(ctx context.Context, plan Plan, page PageFunc, policy ErrorPolicy) (int, error) {
	if policy == nil {
		policy = Abort
	}
	visited := 0
	for _, w := range plan.Windows() {
		if err := ctx.Err(); err != nil {
			return visited, err
		}
		visited++
		rows, err := page(ctx, w)
		if err != nil {
			if perr := policy(w, err); perr != nil {
				return visited, perr
			}
			rows = 0
		}
		if rows == 0 && plan.StopOnEmpty {
			return visited, nil
		}
	}
	return visited, nil
}

// FetchFunc returns the rows of one window.
type FetchFunc[R any] func(ctx context.Context, w Window) ([]R, error)

// Walk concatenates the rows of every visited window.
func Walk[R any](ctx context.Context, plan Plan, fetch FetchFunc[R], policy ErrorPolicy) ([]R, error) {
	var out []R
	_, err := Each(ctx, plan, func(ctx context.Context, w Window) (int, error) {
		rows, err := fetch(ctx, w)
		if err != nil {
			return 0, err
		}
		out = append(out, rows...)
		return len(rows), nil
	}, policy)
	return out, err
}

// Chunk splits items into consecutive groups of at most size.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// Horizon inputs for order sync.
type Horizon struct {
	Requested int
	// OldestOpen is the order date of the oldest non-terminal order, if any.
	OldestOpen *time.Time
	HasRows    bool
	Now        time.Time
	// Ceiling bounds any widening.
	Ceiling int
	// Initial is used when nothing has been synced yet.
	Initial int
}

// OrderHorizon widens the requested day count so still-open orders stay in
// range. Only the widening is capped by the ceiling; the requested days are
// kept as asked. An empty table gets the initial horizon.
func OrderHorizon(h Horizon) int {
	if !h.HasRows {
		return h.Initial
	}
	days := h.Requested
	if h.OldestOpen != nil {
		age := int(h.Now.Sub(*h.OldestOpen).Hours()/24) + 1
		if h.Ceiling > 0 && age > h.Ceiling {
			age = h.Ceiling
		}
		days = max(days, age)
	}
	return days
}
