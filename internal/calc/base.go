package calc

import (
	"runtime"
	"sync"
)

// PipeLine represents a pool of compute workers
type PipeLine struct {
	numPoper int
}

// Init returns a compute PipeLine with the given number of workers.
// workers <= 0 uses one worker per CPU.
func Init(workers int) *PipeLine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &PipeLine{
		numPoper: workers,
	}
}

// GetNP returns the number of workers
func (p *PipeLine) GetNP() int {
	return p.numPoper
}

// dispatch hands jobs 0..n-1 to the workers and waits for all of them
func (p *PipeLine) dispatch(n int, job func(index int)) {
	order := make(chan int, p.numPoper)
	var wg sync.WaitGroup

	wg.Add(n)

	for i := 0; i < p.numPoper; i++ {
		go work(job, order, &wg)
	}

	for i := 0; i < n; i++ {
		order <- i
	}

	wg.Wait()
	close(order)
	return
}

func work(job func(index int), order <-chan int, wg *sync.WaitGroup) {
	for {
		index, ok := <-order
		if ok {
			job(index)
			wg.Done()
		} else {
			break
		}
	}

	return
}

type statistic struct {
	avg float64
	std float64
}
