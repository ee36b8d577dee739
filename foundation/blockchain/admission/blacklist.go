package admission

import "time"

// ReportFailure records an invalid submission from the identity. Reaching
// the failure threshold bans the identity for the ban duration and starts
// its count over. It reports whether the identity is banned.
func (c *Control) ReportFailure(identity string) bool {
	rec, err := c.record(identity)
	if err != nil {
		c.evHandler("admission: ReportFailure: identity[%s]: ERROR: %s", identity, err)
		return false
	}

	now := c.now()

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.banned(now) {
		return true
	}

	rec.failedAttempts++
	c.evHandler("admission: ReportFailure: identity[%s]: failed attempts[%d of %d]", identity, rec.failedAttempts, c.threshold)

	if rec.failedAttempts < c.threshold {
		return false
	}

	rec.unbanAt = now.Add(c.banDuration)
	rec.failedAttempts = 0
	c.bans.Inc()

	c.evHandler("admission: ReportFailure: identity[%s]: BANNED: until[%s]", identity, rec.unbanAt.Format(time.RFC3339))

	return true
}

// ReportSuccess records a valid submission from the identity, which clears
// its failed attempts.
func (c *Control) ReportSuccess(identity string) {
	rec, err := c.record(identity)
	if err != nil {
		c.evHandler("admission: ReportSuccess: identity[%s]: ERROR: %s", identity, err)
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.failedAttempts = 0
}
