package server

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dimensify/dimensify/internal/core/commandlog"
	"github.com/dimensify/dimensify/internal/core/protocol"
)

// reply is a response bound for one request of a session.
type reply struct {
	seq  uint64
	resp protocol.ProtoResponse
}

// ClientSession is one connected controller. Every request it sends gets
// its own origin, "<session id>/<request seq>", so responses can be matched
// even when they leave out of order.
type ClientSession struct {
	ID          string
	Transport   string
	ConnectedAt time.Time

	out       chan reply
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(transport string, buffer int) *ClientSession {
	return &ClientSession{
		ID:          uuid.NewString(),
		Transport:   transport,
		ConnectedAt: time.Now(),
		out:         make(chan reply, buffer),
		done:        make(chan struct{}),
	}
}

func (s *ClientSession) origin(seq uint64) commandlog.Origin {
	return commandlog.Origin(s.ID + "/" + strconv.FormatUint(seq, 10))
}

// deliver queues a reply without blocking.
func (s *ClientSession) deliver(r reply) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- r:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSessionBackpressure
	}
}

func (s *ClientSession) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// parseOrigin splits an origin produced by ClientSession.origin.
func parseOrigin(origin commandlog.Origin) (id string, seq uint64, err error) {
	i := strings.LastIndexByte(string(origin), '/')
	if i <= 0 {
		return "", 0, ErrInvalidOrigin
	}
	seq, err = strconv.ParseUint(string(origin[i+1:]), 10, 64)
	if err != nil {
		return "", 0, ErrInvalidOrigin
	}
	return string(origin[:i]), seq, nil
}

type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*ClientSession
}

func (r *sessionRegistry) add(s *ClientSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = make(map[string]*ClientSession)
	}
	r.sessions[s.ID] = s
}

func (r *sessionRegistry) remove(s *ClientSession) {
	r.mu.Lock()
	delete(r.sessions, s.ID)
	r.mu.Unlock()
	s.close()
}

func (r *sessionRegistry) get(id string) (*ClientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.close()
		delete(r.sessions, id)
	}
}
