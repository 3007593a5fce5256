package querycache

import (
	"context"

	"github.com/codr1/VolleySmart/internal/realtime"
)

// Publisher invalidates the cached queries an event affects before handing
// the event on, so reads that follow a write never see the old value.
type Publisher struct {
	Cache *Cache
	Next  realtime.Publisher
}

func (p Publisher) Publish(ctx context.Context, ev realtime.Event) {
	p.Cache.Invalidate(InvalidationFor(ev.ClubID()))
	if p.Next != nil {
		p.Next.Publish(ctx, ev)
	}
}
