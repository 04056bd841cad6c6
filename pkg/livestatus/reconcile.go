package livestatus

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/weave/pkg/domain"
)

// ingestStatus is the single entry point for status updates from either
// source. An update is applied only if its timestamp is >= the last applied
// one for that node; older updates are discarded, which makes the merge
// idempotent and immune to push/poll reordering.
//
// The per-node gate keeps the stale check and the apply atomic: without it,
// two concurrent updates for the same node could both pass the check and
// land in inverted order. The channel mutex is never held across the apply
// because appliers may call back into Subscribe and Unsubscribe.
func (c *Channel) ingestStatus(nodeID string, update domain.StatusUpdate, source string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	gate := c.gateLocked(nodeID)
	c.mu.Unlock()

	gate.Lock()
	defer gate.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ts := update.UpdatedAt
	if ts.IsZero() {
		// Poll results carry no server timestamp; the fetch reflects the
		// server's current state, so stamp it at arrival.
		ts = c.clock.Now()
		update.UpdatedAt = ts
	}
	if last, ok := c.lastApplied[nodeID]; ok && ts.Before(last) {
		c.mu.Unlock()
		if c.hooks.OnStatusDiscarded != nil {
			c.hooks.OnStatusDiscarded(&domain.StatusEvent{NodeID: nodeID, Source: source, Timestamp: ts})
		}
		c.logger.Debug("discarded stale status update", "node_id", nodeID, "source", source)
		return
	}
	c.lastApplied[nodeID] = ts
	c.mu.Unlock()

	if err := c.applier.ApplyNodeStatus(nodeID, update); err != nil {
		c.logger.Debug("status update not applied", "node_id", nodeID, "err", err)
		return
	}
	if c.hooks.OnStatusApplied != nil {
		c.hooks.OnStatusApplied(&domain.StatusEvent{NodeID: nodeID, Source: source, Timestamp: ts})
	}
}

// ingestState forwards a state push. State blobs are opaque and carry no
// ordering information; last write wins.
func (c *Channel) ingestState(nodeID string, state map[string]any) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if err := c.applier.ApplyNodeState(nodeID, state); err != nil {
		c.logger.Debug("state update not applied", "node_id", nodeID, "err", err)
	}
}

// handleDown moves the channel to Degraded and arms the poll timer.
// A further disconnect while already degraded increases the level, which
// doubles the interval up to the cap.
func (c *Channel) handleDown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.mode == domain.ModeDegraded {
		c.level++
	} else {
		c.mode = domain.ModeDegraded
		c.level = 1
	}
	interval := c.pollIntervalLocked()
	if c.pollTimer != nil {
		c.pollTimer.Stop()
	}
	c.pollTimer = c.clock.AfterFunc(interval, c.pollTick)
	level := c.level
	c.mu.Unlock()

	if c.hooks.OnModeChange != nil {
		c.hooks.OnModeChange(&domain.ModeEvent{Mode: domain.ModeDegraded, Level: level, PollInterval: interval})
	}
	c.logger.Warn("transport down, polling node statuses", "level", level, "interval", interval)
}

// handleUp moves the channel back to Live: polling stops, the interval
// resets, room membership is re-established in one batch, and one forced
// refetch resynchronizes whatever was missed while offline.
func (c *Channel) handleUp() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mode = domain.ModeLive
	c.level = 0
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
	c.refreshRoomLocked()
	ids := c.subscribedIDsLocked()
	c.mu.Unlock()

	if c.hooks.OnModeChange != nil {
		c.hooks.OnModeChange(&domain.ModeEvent{Mode: domain.ModeLive})
	}
	c.logger.Info("transport up, push events resumed", "nodes", len(ids))
	go c.fetchStatuses(ids)
}

// pollTick runs one poll round and re-arms the timer at the current
// backoff interval.
func (c *Channel) pollTick() {
	c.mu.Lock()
	if c.closed || c.mode != domain.ModeDegraded {
		c.mu.Unlock()
		return
	}
	c.pollTimer = c.clock.AfterFunc(c.pollIntervalLocked(), c.pollTick)
	ids := c.subscribedIDsLocked()
	c.mu.Unlock()

	c.fetchStatuses(ids)
}

// fetchStatuses fetches every subscribed node's status concurrently and
// feeds the results through the same monotonic merge as pushes.
func (c *Channel) fetchStatuses(ids []string) {
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(nodeID string) {
			defer wg.Done()
			update, err := c.gateway.FetchNodeStatus(context.Background(), nodeID)
			if err != nil {
				c.logger.Debug("status poll failed", "node_id", nodeID, "err", err)
				return
			}
			if update == nil {
				return
			}
			c.ingestStatus(nodeID, *update, "poll")
		}(id)
	}
	wg.Wait()
}

// pollIntervalLocked computes base * 2^(level-1), capped at the maximum.
func (c *Channel) pollIntervalLocked() time.Duration {
	interval := c.baseInterval
	for i := 1; i < c.level; i++ {
		interval *= 2
		if interval >= c.maxInterval {
			return c.maxInterval
		}
	}
	if interval > c.maxInterval {
		return c.maxInterval
	}
	return interval
}
