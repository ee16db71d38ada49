package comm

import (
	"math"
	"sync/atomic"
	"testing"
)

func TestBarrierLockstep(t *testing.T) {
	g := NewGroup(4)

	var phase atomic.Int64
	err := g.Run(func(c *Comm) error {
		for step := 0; step < 100; step++ {
			c.Barrier()
			// all ranks must observe the same phase between barriers
			if got := phase.Load(); got != int64(step) {
				t.Errorf("rank %d step %d: phase = %d", c.Rank(), step, got)
				return nil
			}
			c.Barrier()
			if c.IsRoot() {
				phase.Add(1)
			}
			c.Barrier()
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSendRecvNeighbors(t *testing.T) {
	g := NewGroup(3)

	err := g.Run(func(c *Comm) error {
		payload := []float64{float64(c.Rank()), 2 * float64(c.Rank())}

		// ring exchange to the right
		next := (c.Rank() + 1) % c.Size()
		prev := (c.Rank() + c.Size() - 1) % c.Size()

		c.Send(next, payload)
		got := c.Recv(prev)

		if got[0] != float64(prev) || got[1] != 2*float64(prev) {
			t.Errorf("rank %d received %v from rank %d", c.Rank(), got, prev)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAllreduceMinMax(t *testing.T) {
	g := NewGroup(4)

	err := g.Run(func(c *Comm) error {
		v := [3]float64{float64(c.Rank()), -float64(c.Rank()), 5}
		if c.Rank() == 2 {
			// a rank with no events contributes the identity
			v = [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
		}

		min := c.AllreduceMin(v)
		want := [3]float64{0, -3, 5}
		if min != want {
			t.Errorf("rank %d: AllreduceMin = %v, want %v", c.Rank(), min, want)
		}

		w := [3]float64{float64(c.Rank()), -float64(c.Rank()), 5}
		if c.Rank() == 2 {
			w = [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
		}
		max := c.AllreduceMax(w)
		wantMax := [3]float64{3, 0, 5}
		if max != wantMax {
			t.Errorf("rank %d: AllreduceMax = %v, want %v", c.Rank(), max, wantMax)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
