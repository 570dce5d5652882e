package ttlcache

import "time"

func (c *Store[V]) startJanitor() {
	if c.opts.cleanupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.opts.cleanupInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				c.deleteExpired()
			case <-c.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
}

// deleteExpired drops entries that are past their TTL and stale grace.
func (c *Store[V]) deleteExpired() int {
	now := c.opts.now()
	c.mu.Lock()
	n := 0
	for _, k := range c.store.Keys() {
		if e, ok := c.store.Peek(k); ok && !e.servable(now, c.opts.staleGrace) {
			if c.store.Remove(k) {
				n++
			}
		}
	}
	c.mu.Unlock()

	c.recordEviction(EvictReasonExpired, n)
	return n
}

// Stop terminates the janitor. Safe to call more than once.
func (c *Store[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}
