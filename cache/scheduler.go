package cache

// trimLoop is the periodic maintenance goroutine. Every AutoTrimInterval it
// enforces the cost, count and age limits, in that order; each pass re-reads
// the totals left by the previous one.
//
// The timer is recreated after each cycle instead of using a ticker so a
// mock clock can drive the loop deterministically in tests. The loop holds
// nothing that outlives Close: it observes the stop channel and never
// reschedules after it fires.
func (c *Cache) trimLoop() {
	defer c.maint.Done()

	timer := c.clk.Timer(c.cfg.AutoTrimInterval)
	defer func() { timer.Stop() }()

	for {
		select {
		case <-c.stop:
			return
		case <-timer.C:
			costTarget := c.cfg.CostLimit
			if c.cfg.TrimToPreferredOnSchedule && c.cfg.PreferredCostAfterPurge != NoLimit {
				costTarget = c.cfg.PreferredCostAfterPurge
			}
			c.TrimToCost(costTarget)
			c.TrimToCount(c.cfg.CountLimit)
			c.TrimToAge(c.cfg.AgeLimit)

			timer = c.clk.Timer(c.cfg.AutoTrimInterval)
		}
	}
}
