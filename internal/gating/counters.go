package gating

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wangqiang-666/ETH-sub009/internal/model"
)

// Counters is the single typed state object for gating observability,
// per the spec §9 redesign note ("model as a single typed state object
// ... with atomic counter fields; expose read-only snapshots"). It tracks
// both the rolling hourly admission counts the HOURLY rule consults and
// the rejection-reason histogram the system-status endpoint reports.
type Counters struct {
	hourlyMu        sync.Mutex
	hourlyWindowEnd time.Time
	hourlyTotal     int64
	hourlyByDir     map[model.Direction]int64

	rejectionsMu sync.Mutex
	byReason     map[string]int64
	byDirection  map[model.Direction]int64

	totalAdmitted  int64
	totalRejected  int64
}

// NewCounters builds an empty Counters whose first hourly window ends one
// hour after construction; each rollover starts a fresh one-hour window
// from the moment it happens.
func NewCounters() *Counters {
	return &Counters{
		hourlyWindowEnd: time.Now().Add(time.Hour),
		hourlyByDir:     make(map[model.Direction]int64),
		byReason:        make(map[string]int64),
		byDirection:     make(map[model.Direction]int64),
	}
}

// HourlyCounts returns the current (total, per-direction) hourly admission
// counts, resetting the window if it has elapsed.
func (c *Counters) HourlyCounts(direction model.Direction) (total int64, perDirection int64) {
	c.hourlyMu.Lock()
	defer c.hourlyMu.Unlock()
	c.rolloverHourlyLocked()
	return c.hourlyTotal, c.hourlyByDir[direction]
}

// RecordAdmission increments the hourly admission counters on a successful
// admission. unknownDirection selects the §9 open-question policy: when
// true and policy is TOTAL_AND_DIRECTION, both TOTAL and the resolved
// direction bucket are incremented even though direction context was
// ambiguous upstream.
func (c *Counters) RecordAdmission(direction model.Direction, unknownDirection bool, policy HourlyUnknownDirectionPolicy) {
	c.hourlyMu.Lock()
	c.rolloverHourlyLocked()
	c.hourlyTotal++
	if !unknownDirection || policy == HourlyUnknownCountsBoth {
		c.hourlyByDir[direction]++
	}
	c.hourlyMu.Unlock()

	atomic.AddInt64(&c.totalAdmitted, 1)
}

func (c *Counters) rolloverHourlyLocked() {
	if time.Now().After(c.hourlyWindowEnd) {
		c.hourlyTotal = 0
		c.hourlyByDir = make(map[model.Direction]int64)
		c.hourlyWindowEnd = time.Now().Add(time.Hour)
	}
}

// RecordRejection increments the rejection-reason and per-direction
// histograms. Reason and direction are counted separately; there is no
// counter keyed by MTF bucket or hourly scope.
func (c *Counters) RecordRejection(reason string, direction model.Direction) {
	c.rejectionsMu.Lock()
	c.byReason[reason]++
	c.byDirection[direction]++
	c.rejectionsMu.Unlock()

	atomic.AddInt64(&c.totalRejected, 1)
}

// Snapshot is the read-only view exposed via the system-status endpoint.
type Snapshot struct {
	TotalAdmitted int64                     `json:"total_admitted"`
	TotalRejected int64                     `json:"total_rejected"`
	ByReason      map[string]int64          `json:"by_reason"`
	ByDirection   map[model.Direction]int64 `json:"by_direction"`
	HourlyTotal   int64                     `json:"hourly_total"`
	HourlyByDir   map[model.Direction]int64 `json:"hourly_by_direction"`
}

// Snapshot returns a copy-safe view of current counters.
func (c *Counters) Snapshot() Snapshot {
	c.rejectionsMu.Lock()
	byReason := make(map[string]int64, len(c.byReason))
	for k, v := range c.byReason {
		byReason[k] = v
	}
	byDirection := make(map[model.Direction]int64, len(c.byDirection))
	for k, v := range c.byDirection {
		byDirection[k] = v
	}
	c.rejectionsMu.Unlock()

	c.hourlyMu.Lock()
	c.rolloverHourlyLocked()
	hourlyByDir := make(map[model.Direction]int64, len(c.hourlyByDir))
	for k, v := range c.hourlyByDir {
		hourlyByDir[k] = v
	}
	hourlyTotal := c.hourlyTotal
	c.hourlyMu.Unlock()

	return Snapshot{
		TotalAdmitted: atomic.LoadInt64(&c.totalAdmitted),
		TotalRejected: atomic.LoadInt64(&c.totalRejected),
		ByReason:      byReason,
		ByDirection:   byDirection,
		HourlyTotal:   hourlyTotal,
		HourlyByDir:   hourlyByDir,
	}
}
