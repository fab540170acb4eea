package main

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sequenceIDs hands out 00000000-0000-0000-0000-00000000000N ids in order.
type sequenceIDs struct {
	mu sync.Mutex
	n  int
	// fixed, when non-empty, is returned before the sequence starts.
	fixed []uuid.UUID
}

func (g *sequenceIDs) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.fixed) > 0 {
		id := g.fixed[0]
		g.fixed = g.fixed[1:]
		return id
	}
	g.n++
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", g.n))
}

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), step: time.Second}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// frozenClock always answers the same instant.
type frozenClock time.Time

func (c frozenClock) Now() time.Time { return time.Time(c) }

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
