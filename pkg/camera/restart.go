package camera

import (
	"time"
)

type restartAction int

const (
	actionWait restartAction = iota
	actionRestart
	actionGiveUp
)

// restartPolicy bounds reopen attempts on read failures. Attempts are
// spaced at least gap apart and forgotten after a healthy reset period.
type restartPolicy struct {
	max   int
	gap   time.Duration
	reset time.Duration

	attempts int
	last     time.Time
}

func newRestartPolicy(cfg Config) *restartPolicy {
	return &restartPolicy{
		max:   cfg.MaxRestarts,
		gap:   cfg.RestartGap,
		reset: cfg.RestartReset,
	}
}

func (p *restartPolicy) success(now time.Time) {
	if p.attempts > 0 && now.Sub(p.last) > p.reset {
		p.attempts = 0
	}
}

func (p *restartPolicy) failure(now time.Time) restartAction {
	if p.attempts >= p.max {
		return actionGiveUp
	}
	if p.attempts > 0 && now.Sub(p.last) <= p.gap {
		return actionWait
	}
	p.attempts++
	p.last = now
	return actionRestart
}
