// Package hyperball implements HyperBall (§4.H): an HLL-based iterative
// estimator of harmonic centrality over a graph.
package hyperball

import (
	"sync"

	"github.com/webidx/ftindex/internal/hll"
)

// DefaultRounds is the fixed horizon the source runs (t = 0..40).
const DefaultRounds = 41

// DefaultWorkers is the typical worker-thread degree for this analytic.
const DefaultWorkers = 12

// Run computes approximate harmonic centrality for n vertices, given an
// adjacency function returning the out-neighbors of v. Each round
// partitions [0, n) across numWorkers goroutines, synchronized by a
// barrier (sync.WaitGroup) between rounds, exactly as the source's
// per-round std::thread join barrier.
func Run(n int, edges func(v int) []int, numWorkers, rounds int) []float64 {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	if numWorkers > n && n > 0 {
		numWorkers = n
	}
	if rounds <= 0 {
		rounds = DefaultRounds
	}

	c := make([]*hll.HLL, n)
	a := make([]*hll.HLL, n)
	harmonic := make([]float64, n)
	for v := 0; v < n; v++ {
		c[v] = hll.New()
		c[v].Insert(uint64(v))
		a[v] = hll.New()
	}

	for t := 0; t < rounds; t++ {
		runRound(n, edges, numWorkers, c, a, harmonic, t)
		// Barrier: c <- a for the next round.
		for v := 0; v < n; v++ {
			c[v] = a[v]
		}
	}

	return harmonic
}

func runRound(n int, edges func(v int) []int, numWorkers int, c, a []*hll.HLL, harmonic []float64, t int) {
	if n == 0 {
		return
	}

	chunk := (n + numWorkers - 1) / numWorkers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(begin, stop int) {
			defer wg.Done()
			hyperBallWorker(begin, stop, edges, c, a, harmonic, t)
		}(start, end)
	}
	wg.Wait()
}

// hyperBallWorker processes vertices [vBegin, vEnd): a[v] starts as a copy
// of c[v] unioned with every neighbor's c[w], then harmonic[v] accrues the
// round's contribution. Mirrors hyper_ball_worker in the source.
func hyperBallWorker(vBegin, vEnd int, edges func(v int) []int, c, a []*hll.HLL, harmonic []float64, t int) {
	for v := vBegin; v < vEnd; v++ {
		next := hll.New()
		next.Merge(c[v])
		for _, w := range edges(v) {
			next.Merge(c[w])
		}
		a[v] = next
		harmonic[v] += (1.0 / float64(t+1)) * (a[v].Count() - c[v].Count())
	}
}
