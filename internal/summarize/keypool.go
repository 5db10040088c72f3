package summarize

import (
	"context"
)

// KeyPool hands out credential slots. One slot is one permission to hold one
// specific API key; with per-key concurrency C and K keys the pool holds
// K*C slots. Acquire blocks until a slot frees up and returns the exact key
// to use; Release returns that key's slot.
type KeyPool struct {
	slots chan string
	keys  int
}

// NewKeyPool pre-fills the pool. Keys are interleaved so a burst of
// acquires spreads across the key list instead of draining one key first.
func NewKeyPool(keys []string, perKey int) *KeyPool {
	if len(keys) == 0 {
		keys = []string{""}
	}
	if perKey <= 0 {
		perKey = 3
	}
	ch := make(chan string, len(keys)*perKey)
	for i := 0; i < perKey; i++ {
		for _, k := range keys {
			ch <- k
		}
	}
	return &KeyPool{slots: ch, keys: len(keys)}
}

// Acquire blocks for a free slot and returns its key.
func (p *KeyPool) Acquire(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case k := <-p.slots:
		return k, nil
	}
}

// Release returns a key's slot to the pool. Never blocks: the channel is
// sized for every slot ever issued.
func (p *KeyPool) Release(key string) {
	select {
	case p.slots <- key:
	default:
	}
}

// Keys reports the number of distinct keys in the pool.
func (p *KeyPool) Keys() int { return p.keys }

// Free reports currently available slots.
func (p *KeyPool) Free() int { return len(p.slots) }
