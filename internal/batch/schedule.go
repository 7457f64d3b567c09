// Package batch produces growing minibatch sizes and slices example lists
// into batches.
package batch

// Defaults for the compounding schedule.
const (
	DefaultStart    = 4.0
	DefaultStop     = 32.0
	DefaultCompound = 1.001
)

// Sizer yields an unbounded sequence of batch sizes.
type Sizer interface {
	Next() float64
}

// Compounding yields start, start*factor, start*factor^2, ... clipped to stop.
// When start > stop the sequence shrinks towards stop instead.
// A Compounding is single-use; create a fresh one per epoch.
type Compounding struct {
	start  float64
	stop   float64
	factor float64
	curr   float64
}

// NewCompounding creates a compounding schedule.
func NewCompounding(start, stop, factor float64) *Compounding {
	return &Compounding{
		start:  start,
		stop:   stop,
		factor: factor,
		curr:   start,
	}
}

// Default returns the 4 -> 32 schedule growing by 0.1% per batch.
func Default() *Compounding {
	return NewCompounding(DefaultStart, DefaultStop, DefaultCompound)
}

// Next returns the current size and advances the schedule.
func (c *Compounding) Next() float64 {
	v := c.clip(c.curr)
	c.curr *= c.factor
	return v
}

func (c *Compounding) clip(v float64) float64 {
	if c.start > c.stop {
		return max(v, c.stop)
	}
	return min(v, c.stop)
}

// Fixed is a Sizer that always yields the same size.
type Fixed float64

// Next returns the fixed size.
func (f Fixed) Next() float64 {
	return float64(f)
}
