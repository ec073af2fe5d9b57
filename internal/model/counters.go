package model

import "sync/atomic"

// RunCounters tallies completed and failed sub-analyses when several run
// concurrently against one target. Safe for use from multiple goroutines.
type RunCounters struct {
	completed atomic.Int64
	failed    atomic.Int64
}

func (c *RunCounters) AddCompleted() { c.completed.Add(1) }
func (c *RunCounters) AddFailed()    { c.failed.Add(1) }

func (c *RunCounters) Completed() int { return int(c.completed.Load()) }
func (c *RunCounters) Failed() int    { return int(c.failed.Load()) }
