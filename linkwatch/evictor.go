package linkwatch

import "time"

func (ep *endpoint) sessionOpened(id SessionID) {
	ep.mu.Lock()
	if !ep.closed {
		if _, ok := ep.sessions[id]; !ok {
			ep.eng.metrics.addSessionGauge(1)
		}
		ep.sessions[id] = time.Now()
		ep.rescheduleEvictLocked()
	}
	ep.mu.Unlock()

	ep.logger.Debug("session opened", "session", string(id))

	if ep.prevSession.Opened != nil {
		ep.prevSession.Opened(id)
	}
}

func (ep *endpoint) sessionData(id SessionID, p []byte) {
	ep.mu.Lock()
	if !ep.closed {
		_, known := ep.sessions[id]
		if !known {
			ep.eng.metrics.addSessionGauge(1)
		}
		ep.sessions[id] = time.Now()
		if !known || id == ep.oldest {
			ep.rescheduleEvictLocked()
		}
	}
	ep.mu.Unlock()

	if ep.prevSession.Data != nil {
		ep.prevSession.Data(id, p)
	}
}

func (ep *endpoint) sessionClosed(id SessionID) {
	ep.mu.Lock()
	if !ep.closed {
		if _, ok := ep.sessions[id]; ok {
			delete(ep.sessions, id)
			ep.eng.metrics.addSessionGauge(-1)
			if id == ep.oldest {
				ep.rescheduleEvictLocked()
			}
		}
	}
	ep.mu.Unlock()

	ep.logger.Debug("session closed", "session", string(id))

	if ep.prevSession.Closed != nil {
		ep.prevSession.Closed(id)
	}
}

// touchSessionsLocked marks every live session active now.
func (ep *endpoint) touchSessionsLocked() {
	now := time.Now()
	for id := range ep.sessions {
		ep.sessions[id] = now
	}
	ep.rescheduleEvictLocked()
}

// rescheduleEvictLocked points the eviction timer at the deadline of the oldest session,
// or stops it when there is none.
func (ep *endpoint) rescheduleEvictLocked() {
	var (
		oldestID SessionID
		oldest   time.Time
		found    bool
	)
	for id, last := range ep.sessions {
		if !found || last.Before(oldest) {
			oldestID, oldest, found = id, last, true
		}
	}

	if !found {
		ep.oldest = ""
		ep.evictTimer.Stop()

		return
	}

	ep.oldest = oldestID
	delay := max(ep.cfg.idleTimeout-time.Since(oldest), 0)
	ep.handleStartErr(ep.evictTimer, ep.evictTimer.Reschedule(delay), ep.hasSessions)
}

func (ep *endpoint) hasSessions() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	return !ep.closed && len(ep.sessions) > 0
}

// evict is the eviction timer callback. It closes every session idle for at least the idle timeout.
func (ep *endpoint) evict() {
	now := time.Now()

	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return
	}

	var victims []SessionID
	for id, last := range ep.sessions {
		if now.Sub(last) >= ep.cfg.idleTimeout {
			victims = append(victims, id)
			delete(ep.sessions, id)
		}
	}
	ep.rescheduleEvictLocked()
	ep.mu.Unlock()

	ep.eng.metrics.addSessionGauge(-int64(len(victims)))
	for _, id := range victims {
		ep.closeIdleSession(id)
	}
}

func (ep *endpoint) closeIdleSession(id SessionID) {
	ep.logger.Info("evict idle session", "session", string(id), "idle_timeout", ep.cfg.idleTimeout)
	ep.eng.metrics.incEvictionCount()

	if ep.cfg.evictionNotice != nil {
		if err := ep.listener.SendTo(id, ep.cfg.evictionNotice); err != nil {
			ep.logger.Debug("failed to send eviction notice", "session", string(id), "error", err)
		}
	}

	if err := ep.listener.CloseSession(id); err != nil {
		ep.logger.Debug("failed to close session", "session", string(id), "error", err)
	}
}
