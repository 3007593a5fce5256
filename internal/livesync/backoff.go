package livesync

import "time"

// backoff doubles the poll interval after every quiet check, up to max.
type backoff struct {
	min time.Duration
	max time.Duration
	cur time.Duration
}

func newBackoff(floor, ceiling time.Duration) *backoff {
	if ceiling < floor {
		ceiling = floor
	}
	return &backoff{min: floor, max: ceiling, cur: floor}
}

// next returns the delay to use now and doubles the one after it.
func (b *backoff) next() time.Duration {
	d := b.cur
	b.cur = min(b.cur*2, b.max)
	return d
}

func (b *backoff) current() time.Duration {
	return b.cur
}

func (b *backoff) reset() {
	b.cur = b.min
}
