package metrics

import (
	"time"

	"github.com/carrysync/carry/pkg/store"
)

// Collector periodically samples a Store's record and pending-queue sizes
// into the RecordsTotal and PendingOpsTotal gauges.
type Collector struct {
	store       *store.Store
	collections []string
	stopCh      chan struct{}
}

// NewCollector creates a collector for store, sampling the given collection
// names (the Store itself has no directory of collections to enumerate).
func NewCollector(s *store.Store, collections []string) *Collector {
	return &Collector{store: s, collections: collections, stopCh: make(chan struct{})}
}

// Start begins periodic collection in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for _, name := range c.collections {
		active := len(c.store.Query(name))
		all := len(c.store.Query(name, store.IncludeDeleted()))
		RecordsTotal.WithLabelValues(name, "active").Set(float64(active))
		RecordsTotal.WithLabelValues(name, "deleted").Set(float64(all - active))
	}
	PendingOpsTotal.Set(float64(len(c.store.PendingOps())))
}
