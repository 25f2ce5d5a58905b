// Package registry holds the set of live connections. The set is owned by a
// single supervisor goroutine; callers reach it only through its methods, which
// pass closures to the supervisor and wait for them to run.
package registry

import (
	"io"
	"sort"
	"sync"
	"time"
)

// Info describes one live connection.
type Info struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

type entry struct {
	info   Info
	closer io.Closer
}

type op func(conns map[string]entry)

// Registry is the live connection set.
type Registry struct {
	ops      chan op
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// New starts the supervisor goroutine. Call Stop to end it.
func New() *Registry {
	r := &Registry{
		ops:     make(chan op),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Registry) run() {
	defer close(r.stopped)

	conns := make(map[string]entry)
	for {
		select {
		case fn := <-r.ops:
			fn(conns)
		case <-r.quit:
			return
		}
	}
}

// exec runs fn on the supervisor and waits for it. It returns false once the
// registry is stopped.
func (r *Registry) exec(fn op) bool {
	done := make(chan struct{})
	wrapped := func(conns map[string]entry) {
		fn(conns)
		close(done)
	}
	select {
	case r.ops <- wrapped:
	case <-r.quit:
		return false
	}
	<-done
	return true
}

// Add registers a connection. closer is closed by CloseAll.
func (r *Registry) Add(info Info, closer io.Closer) {
	r.exec(func(conns map[string]entry) {
		conns[info.ID] = entry{info: info, closer: closer}
	})
}

// Remove deletes the connection and reports whether it was a member.
func (r *Registry) Remove(id string) bool {
	var removed bool
	r.exec(func(conns map[string]entry) {
		if _, ok := conns[id]; ok {
			delete(conns, id)
			removed = true
		}
	})
	return removed
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	var n int
	r.exec(func(conns map[string]entry) {
		n = len(conns)
	})
	return n
}

// Snapshot returns a copy of the set ordered by connect time.
func (r *Registry) Snapshot() []Info {
	infos := []Info{}
	r.exec(func(conns map[string]entry) {
		for _, e := range conns {
			infos = append(infos, e.info)
		}
	})
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// CloseAll closes every registered closer and returns how many were closed.
// Members stay registered until their owners call Remove.
func (r *Registry) CloseAll() int {
	var closers []io.Closer
	r.exec(func(conns map[string]entry) {
		for _, e := range conns {
			if e.closer != nil {
				closers = append(closers, e.closer)
			}
		}
	})
	// closed outside the supervisor so a slow Close cannot stall it
	for _, c := range closers {
		_ = c.Close()
	}
	return len(closers)
}

// Stop ends the supervisor. Later calls are no-ops returning zero values.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.quit)
	})
	<-r.stopped
}
