package libav

// cycleDuration measures the playing time of the first pass over the file,
// for containers that do not declare a duration.
type cycleDuration struct {
	isFinished     bool
	hasFirst       bool
	firstPTSUs     int64
	lastPTSUs      int64
	lastDurationUs int64
}

func (c *cycleDuration) Observe(ptsUs, durationUs int64) {
	if c.isFinished || ptsUs < 0 {
		return
	}
	if !c.hasFirst || ptsUs < c.firstPTSUs {
		c.hasFirst = true
		c.firstPTSUs = ptsUs
	}
	if ptsUs >= c.lastPTSUs {
		c.lastPTSUs = ptsUs
		c.lastDurationUs = durationUs
	}
}

func (c *cycleDuration) Finish() {
	c.isFinished = true
}

// DurationUs returns 0 until the first pass is finished.
func (c *cycleDuration) DurationUs() int64 {
	if !c.isFinished || !c.hasFirst {
		return 0
	}
	lastDuration := c.lastDurationUs
	if lastDuration < 0 {
		lastDuration = 0
	}
	return c.lastPTSUs - c.firstPTSUs + lastDuration
}
