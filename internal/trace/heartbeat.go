package trace

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Progress counts replayed scripts. The driver updates it and the heartbeat
// reports it, so a long run shows how far it got and whether it stalled.
// A nil *Progress ignores updates.
type Progress struct {
	total  atomic.Int64
	done   atomic.Int64
	failed atomic.Int64
}

// Expect adds n scripts to the run.
func (p *Progress) Expect(n int) {
	if p != nil {
		p.total.Add(int64(n))
	}
}

// Finish marks one script as replayed.
func (p *Progress) Finish(passed bool) {
	if p == nil {
		return
	}
	if !passed {
		p.failed.Add(1)
	}
	p.done.Add(1)
}

// Snapshot returns the replayed, failed and expected script counts.
func (p *Progress) Snapshot() (done, failed, total int64) {
	if p == nil {
		return 0, 0, 0
	}
	return p.done.Load(), p.failed.Load(), p.total.Load()
}

// Heartbeat periodically emits the replay progress. Beats that report no
// newly replayed script are marked stalled, which points at a stuck script.
type Heartbeat struct {
	tracer   Tracer
	progress *Progress
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// StartHeartbeat starts emitting heartbeats for progress every interval.
func StartHeartbeat(tracer Tracer, progress *Progress, interval time.Duration) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer:   tracer,
		progress: progress,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Heartbeat) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	beat := beatState{last: -1}
	for {
		select {
		case <-ticker.C:
			h.tracer.Emit(&Event{
				Time:   time.Now(),
				Seq:    NextSeq(),
				Kind:   KindHeartbeat,
				Scope:  ScopeDriver,
				GID:    getGoroutineID(),
				Op:     -1,
				Name:   "heartbeat",
				Detail: beat.next(h.progress),
			})
		case <-h.stopCh:
			return
		}
	}
}

type beatState struct {
	seq  uint64
	last int64
}

// next renders one beat, e.g. "#3 replayed 4/27, 1 failed (stalled)".
func (b *beatState) next(p *Progress) string {
	b.seq++
	done, failed, total := p.Snapshot()
	detail := fmt.Sprintf("#%d replayed %d/%d", b.seq, done, total)
	if failed > 0 {
		detail += fmt.Sprintf(", %d failed", failed)
	}
	if done == b.last && done < total {
		detail += " (stalled)"
	}
	b.last = done
	return detail
}

// Stop stops the heartbeat goroutine and waits for it to finish.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}
