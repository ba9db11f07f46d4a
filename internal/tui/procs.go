package tui

import (
	"fmt"
	"time"
)

// proc is one scheduled repeating process, the unit behind /repeat.
type proc struct {
	pid      int
	interval time.Duration
	runsLeft int // 0 means run until killed
	infinite bool
	nextFire time.Time
	body     string
}

// procTable owns the scheduled processes. The event loop ticks it and
// runs whatever is due.
type procTable struct {
	procs   map[int]*proc
	nextPid int
}

func newProcTable() *procTable {
	return &procTable{procs: make(map[int]*proc)}
}

// add schedules a process and returns its pid.
func (t *procTable) add(interval time.Duration, count int, body string) int {
	t.nextPid++
	p := &proc{
		pid:      t.nextPid,
		interval: interval,
		runsLeft: count,
		infinite: count == 0,
		nextFire: time.Now().Add(interval),
		body:     body,
	}
	t.procs[p.pid] = p
	return p.pid
}

// kill removes a process; it reports whether the pid existed.
func (t *procTable) kill(pid int) bool {
	if _, ok := t.procs[pid]; !ok {
		return false
	}
	delete(t.procs, pid)
	return true
}

// due returns every process ready to fire at now, rescheduling or
// retiring each. Exhausted processes are removed before the bodies run,
// so a body re-listing /ps sees consistent state.
func (t *procTable) due(now time.Time) []*proc {
	var out []*proc
	for _, p := range t.procs {
		if now.Before(p.nextFire) {
			continue
		}
		out = append(out, p)
		if !p.infinite {
			p.runsLeft--
			if p.runsLeft <= 0 {
				delete(t.procs, p.pid)
				continue
			}
		}
		p.nextFire = now.Add(p.interval)
	}
	return out
}

// empty reports whether nothing is scheduled.
func (t *procTable) empty() bool { return len(t.procs) == 0 }

// list renders the table for /ps.
func (t *procTable) list() []string {
	if len(t.procs) == 0 {
		return []string{"% No processes."}
	}
	out := make([]string, 0, len(t.procs))
	for pid := 1; pid <= t.nextPid; pid++ {
		p, ok := t.procs[pid]
		if !ok {
			continue
		}
		runs := "forever"
		if !p.infinite {
			runs = fmt.Sprintf("%d left", p.runsLeft)
		}
		out = append(out, fmt.Sprintf("%% %d: every %s (%s) %s", p.pid, p.interval, runs, p.body))
	}
	return out
}
