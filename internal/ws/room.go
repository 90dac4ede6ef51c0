package ws

import "sync"

type room struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

func newRoom() *room { return &room{conns: map[*Conn]struct{}{}} }

func (r *room) add(c *Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// remove deletes c and returns how many members are left.
func (r *room) remove(c *Conn) int {
	r.mu.Lock()
	delete(r.conns, c)
	n := len(r.conns)
	r.mu.Unlock()
	return n
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *room) snapshot() []*Conn {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	return conns
}
