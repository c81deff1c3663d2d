// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs indexed tasks in parallel, with a limit on the number of goroutines.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of tasks running in parallel.
type Pool struct {
	maxParallelism int
}

// New creates a Pool with parallelism set to runtime.NumCPU().
func New() *Pool {
	return &Pool{maxParallelism: runtime.NumCPU()}
}

// MaxParallelism returns the maximum number of tasks run in parallel.
// If 0 tasks are run sequentially in the calling goroutine; if negative the parallelism is unlimited.
func (p *Pool) MaxParallelism() int {
	return p.maxParallelism
}

// SetMaxParallelism sets the maximum number of tasks run in parallel, see MaxParallelism.
func (p *Pool) SetMaxParallelism(maxParallelism int) *Pool {
	p.maxParallelism = maxParallelism
	return p
}

// Run calls task(ii) for ii in [0, numTasks), and waits for all of them to finish.
// It returns the error of the lowest index task that failed, or nil.
func (p *Pool) Run(numTasks int, task func(ii int) error) error {
	errs := make([]error, numTasks)
	if p.maxParallelism == 0 || numTasks <= 1 {
		for ii := range numTasks {
			errs[ii] = task(ii)
		}
		return firstError(errs)
	}

	var wg sync.WaitGroup
	var slots chan struct{}
	if p.maxParallelism > 0 {
		slots = make(chan struct{}, p.maxParallelism)
	}
	for ii := range numTasks {
		if slots != nil {
			slots <- struct{}{}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[ii] = task(ii)
			if slots != nil {
				<-slots
			}
		}()
	}
	wg.Wait()
	return firstError(errs)
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
