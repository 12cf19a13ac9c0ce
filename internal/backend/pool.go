package backend

import "sync"

type rangeTask struct {
	body   func(lo, hi int)
	lo, hi int
	wg     *sync.WaitGroup
}

// pool is a fixed set of goroutines fed over a channel. Workers never block
// on a caller: completion is counted on the caller's own WaitGroup, so any
// number of callers may share the pool.
type pool struct {
	size  int
	tasks chan rangeTask
}

func newPool(size int) *pool {
	size = max(size, 1)
	p := &pool{
		size:  size,
		tasks: make(chan rangeTask, size*2),
	}
	for range size {
		go func() {
			for task := range p.tasks {
				task.body(task.lo, task.hi)
				task.wg.Done()
			}
		}()
	}
	return p
}

// run splits [0, n) into at most size contiguous chunks and blocks until
// all of them have been processed. body must not call run on the same pool.
func (p *pool) run(n int, body func(lo, hi int)) {
	if n <= 0 {
		return
	}
	workers := min(p.size, n)
	if workers <= 1 {
		body(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		wg.Add(1)
		p.tasks <- rangeTask{body: body, lo: lo, hi: min(n, lo+chunk), wg: &wg}
	}
	wg.Wait()
}

func (p *pool) close() {
	close(p.tasks)
}
