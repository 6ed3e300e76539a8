package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/sempr/studenttester-go/internal/guard"
)

type worker struct {
	name   string
	cancel context.CancelFunc
	flag   *guard.ReapFlag
	done   chan struct{}
}

// Workers tracks the named goroutines test bodies run on.
type Workers struct {
	mu   sync.Mutex
	live map[string]*worker
	seq  int
}

func NewWorkers() *Workers {
	return &Workers{live: make(map[string]*worker)}
}

// Go runs fn on a new named worker. The returned channel closes when fn
// returns, or never if fn hangs.
func (w *Workers) Go(parent context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	ctx, cancel := context.WithCancel(parent)
	flag := &guard.ReapFlag{}
	ctx = guard.WithReapFlag(ctx, flag)

	w.mu.Lock()
	if _, taken := w.live[name]; taken {
		w.seq++
		name = fmt.Sprintf("%s#%d", name, w.seq)
	}
	wk := &worker{name: name, cancel: cancel, flag: flag, done: make(chan struct{})}
	w.live[name] = wk
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			if w.live[name] == wk {
				delete(w.live, name)
			}
			w.mu.Unlock()
			cancel()
			close(wk.done)
		}()
		fn(ctx)
	}()
	return wk.done
}

// Alive lists the workers that have not returned.
func (w *Workers) Alive() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.live))
	for name := range w.live {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reap abandons every live worker whose name starts with prefix: its context
// is cancelled and every guarded operation it attempts from now on is
// refused. Goroutines cannot be killed, so a worker that ignores its context
// keeps running detached from the run.
func (w *Workers) Reap(prefix string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var reaped []string
	for name, wk := range w.live {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		slog.Warn("attempting to kill stuck worker, consider making the test return when its context is done", "worker", name)
		wk.flag.Set()
		wk.cancel()
		delete(w.live, name)
		reaped = append(reaped, name)
	}
	sort.Strings(reaped)
	return reaped
}
