package monitor

import (
	"fmt"
	"sync"
)

// pool is a fixed set of persistent workers shared by all cycles of an
// orchestrator. Calls never outnumber the workers.
type pool struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

func newPool(workers int) *pool {
	if workers < 1 {
		workers = 1
	}
	p := &pool{jobs: make(chan func())}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// submit blocks until a worker accepts the job
func (p *pool) submit(job func()) {
	p.jobs <- job
}

// close stops the workers after in-flight jobs finish
func (p *pool) close() {
	p.once.Do(func() {
		close(p.jobs)
		p.wg.Wait()
	})
}

// guard runs fn and converts a panic into a DetectorError
func guard(m Modality, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DetectorError{Modality: m, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &DetectorError{Modality: m, Err: err}
	}
	return nil
}
