// Package comm coordinates a fixed set of in-process ranks running in
// lockstep. It provides the collective operations the simulation needs:
// barriers, neighbor plane exchange, and 3-vector min/max allreduce.
// Collectives are blocking; a rank that never arrives deadlocks the group,
// matching the distributed-runtime contract the solver assumes.
package comm

import (
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Group is the shared state for a set of ranks.
type Group struct {
	size    int
	barrier *barrier

	// mailboxes[from][to] carries one plane payload at a time.
	mailboxes [][]chan []float64

	// scratch for allreduce, one slot per rank; guarded by the
	// surrounding barriers.
	scratch [][3]float64
}

// NewGroup creates a rank group of the given size.
func NewGroup(size int) *Group {
	if size < 1 {
		size = 1
	}
	mailboxes := make([][]chan []float64, size)
	for from := range mailboxes {
		mailboxes[from] = make([]chan []float64, size)
		for to := range mailboxes[from] {
			mailboxes[from][to] = make(chan []float64, 1)
		}
	}
	return &Group{
		size:      size,
		barrier:   newBarrier(size),
		mailboxes: mailboxes,
		scratch:   make([][3]float64, size),
	}
}

// Size returns the number of ranks in the group.
func (g *Group) Size() int { return g.size }

// Run launches one goroutine per rank and waits for all of them. The
// first error cancels nothing mid-collective (collectives are not
// interruptible); ranks are expected to fail before or after a step, not
// inside one.
func (g *Group) Run(fn func(c *Comm) error) error {
	var eg errgroup.Group
	for rank := 0; rank < g.size; rank++ {
		c := &Comm{group: g, rank: rank}
		eg.Go(func() error {
			return fn(c)
		})
	}
	return eg.Wait()
}

// Comm is one rank's handle on the group.
type Comm struct {
	group *Group
	rank  int
}

// Rank returns this rank's index.
func (c *Comm) Rank() int { return c.rank }

// Size returns the group size.
func (c *Comm) Size() int { return c.group.size }

// IsRoot reports whether this is rank 0.
func (c *Comm) IsRoot() bool { return c.rank == 0 }

// Barrier blocks until every rank has arrived.
func (c *Comm) Barrier() {
	c.group.barrier.wait()
}

// Send delivers a payload to another rank. Blocks if the previous
// payload to that rank has not been received yet.
func (c *Comm) Send(to int, data []float64) {
	c.group.mailboxes[c.rank][to] <- data
}

// Recv blocks until a payload from the given rank arrives.
func (c *Comm) Recv(from int) []float64 {
	return <-c.group.mailboxes[from][c.rank]
}

// AllreduceMin reduces a 3-vector with element-wise minimum across all
// ranks. Ranks with nothing to contribute pass +Inf.
func (c *Comm) AllreduceMin(v [3]float64) [3]float64 {
	return c.allreduce(v, math.Min)
}

// AllreduceMax reduces a 3-vector with element-wise maximum across all
// ranks. Ranks with nothing to contribute pass -Inf.
func (c *Comm) AllreduceMax(v [3]float64) [3]float64 {
	return c.allreduce(v, math.Max)
}

func (c *Comm) allreduce(v [3]float64, op func(a, b float64) float64) [3]float64 {
	g := c.group
	g.scratch[c.rank] = v

	// all contributions in place
	c.Barrier()

	out := g.scratch[0]
	for r := 1; r < g.size; r++ {
		for d := 0; d < 3; d++ {
			out[d] = op(out[d], g.scratch[r][d])
		}
	}

	// scratch may be reused only after every rank has read it
	c.Barrier()
	return out
}

// barrier is a reusable generation-counting barrier.
type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	n     int
	count int
	gen   uint64
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
}
