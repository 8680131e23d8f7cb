package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/dimensify/dimensify/internal/core/applicator"
	"github.com/dimensify/dimensify/internal/core/commandlog"
	"github.com/dimensify/dimensify/internal/core/events/bus"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/internal/core/scene"
	"github.com/dimensify/dimensify/internal/core/telemetry"
)

// Server accepts controller connections, appends their commands to the log
// and runs the scene tick loop. The tick goroutine is the only one that
// touches the scene.
type Server struct {
	config Config
	logger log.Log

	log      *commandlog.Log
	pipeline *applicator.Pipeline
	sessions sessionRegistry

	telemetry *telemetry.Store
	playback  telemetry.Playback
	state     telemetry.State
	sync      telemetry.Sync
	started   time.Time

	running atomic.Bool
	ready   chan struct{}

	addrMu   sync.RWMutex
	httpAddr net.Addr
	quicAddr net.Addr
}

// Config holds server configuration
type Config struct {
	// Network settings
	ListenAddr string
	// QUICAddr enables the QUIC endpoint when not empty.
	QUICAddr  string
	TLSConfig *tls.Config

	TickInterval   time.Duration
	MaxMessageSize int64
	WriteTimeout   time.Duration
	SendBuffer     int

	// Telemetry playback
	Playback telemetry.Playback
	ECSSync  bool
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		ListenAddr:     "127.0.0.1:6210",
		TickInterval:   16 * time.Millisecond,
		MaxMessageSize: 4 << 20,
		WriteTimeout:   5 * time.Second,
		SendBuffer:     256,
		Playback:       telemetry.DefaultPlayback(),
	}
}

func (c Config) validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("%w: empty listen address", ErrInvalidConfig)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalidConfig)
	case c.MaxMessageSize <= 0 || c.MaxMessageSize > protocol.MaxFrameBody:
		return fmt.Errorf("%w: max message size out of range", ErrInvalidConfig)
	case c.SendBuffer <= 0:
		return fmt.Errorf("%w: send buffer must be positive", ErrInvalidConfig)
	}
	return nil
}

// NewServer wires a server around a command log and an applicator. The
// server routes applicator responses back to the sessions that sent the
// commands. eventBus may be nil.
func NewServer(config Config, l *commandlog.Log, app *applicator.Applicator, res applicator.Resources, tel *telemetry.Store, eventBus bus.EventBus, logger log.Log) *Server {
	s := &Server{
		config:    config,
		logger:    logger.With(log.Component("server")),
		log:       l,
		telemetry: tel,
		playback:  config.Playback,
		sync:      telemetry.Sync{Enabled: config.ECSSync},
		ready:     make(chan struct{}),
	}
	if s.playback.Timeline == "" {
		s.playback.Timeline = telemetry.DefaultTimeline
	}
	s.pipeline = applicator.NewPipeline(l, app, res, s, eventBus, logger)
	return s
}

// Ready is closed once listeners are bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound websocket address, nil before Ready.
func (s *Server) Addr() net.Addr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.httpAddr
}

// QUICAddr is the bound QUIC address, nil when QUIC is disabled.
func (s *Server) QUICAddr() net.Addr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.quicAddr
}

func (s *Server) Pipeline() *applicator.Pipeline { return s.pipeline }

// SessionCount returns the number of connected controllers.
func (s *Server) SessionCount() int { return s.sessions.count() }

// Route implements applicator.Router.
func (s *Server) Route(origin commandlog.Origin, resp protocol.ProtoResponse) error {
	id, seq, err := parseOrigin(origin)
	if err != nil {
		return applicator.ErrNoRoute
	}
	sess, ok := s.sessions.get(id)
	if !ok {
		return applicator.ErrNoRoute
	}
	if err := s.send(sess, reply{seq: seq, resp: resp}); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return applicator.ErrNoRoute
		}
		return err
	}
	return nil
}

// send queues r on sess. A session that cannot keep up is disconnected so
// the client sees the failure instead of a missing response.
func (s *Server) send(sess *ClientSession, r reply) error {
	err := sess.deliver(r)
	if errors.Is(err, ErrSessionBackpressure) {
		s.logger.Warn("closing session on backpressure",
			log.String("session", sess.ID),
			log.Int("buffer", cap(sess.out)),
		)
		s.sessions.remove(sess)
	}
	return err
}

// Run binds the listeners and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.config.validate(); err != nil {
		return err
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}
	httpSrv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	var quicLn *quic.Listener
	if s.config.QUICAddr != "" {
		quicLn, err = s.listenQUIC()
		if err != nil {
			_ = ln.Close()
			return err
		}
	}

	s.addrMu.Lock()
	s.httpAddr = ln.Addr()
	if quicLn != nil {
		s.quicAddr = quicLn.Addr()
	}
	s.addrMu.Unlock()

	s.seedInfrastructure(ln.Addr())
	s.started = time.Now()
	close(s.ready)
	s.logger.Info("server started", log.String("addr", ln.Addr().String()), log.Bool("quic", quicLn != nil))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if quicLn != nil {
		g.Go(func() error { return s.acceptQUIC(gctx, quicLn) })
	}
	g.Go(func() error { return s.tickLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.sessions.closeAll()
		err := httpSrv.Shutdown(shutdownCtx)
		if quicLn != nil {
			_ = quicLn.Close()
		}
		return err
	})

	err = g.Wait()
	s.logger.Info("server stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handler serves the websocket endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/telemetry", s.handleTelemetry)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *Server) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one scene update: the command pipeline, then telemetry
// playback. It must only be called from the tick goroutine, or in tests
// while Run is not active.
func (s *Server) Tick() applicator.TickStats {
	stats := s.pipeline.Tick()
	if s.telemetry != nil {
		s.playback.Advance(time.Since(s.started).Seconds())
		s.state.Refresh(s.telemetry, s.playback)
		s.sync.Apply(s.pipeline.Applicator().World(), s.telemetry, &s.state)
	}
	return stats
}

// seedInfrastructure spawns the engine-owned entities a viewer host has.
// They never show up in listings and survive Clear.
func (s *Server) seedInfrastructure(addr net.Addr) {
	w := s.pipeline.Applicator().World()
	w.Spawn(scene.Window{Title: "dimensify"})
	w.Spawn(scene.Camera{Order: 0}, scene.Transform(protocol.IdentityTransform()))
	w.Spawn(scene.DirectionalLight{Illuminance: 10_000}, scene.Transform(protocol.IdentityTransform()))
	w.Spawn(scene.NetworkEndpoint{Addr: addr.String()})
}

// handleRequest decodes one request and either answers it right away (bad
// input) or hands it to the log or the list queue.
func (s *Server) handleRequest(sess *ClientSession, seq uint64, data []byte) {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		s.logger.Debug("rejecting undecodable request", log.String("session", sess.ID), log.Error(err))
		if err := s.send(sess, reply{seq: seq, resp: protocol.ErrorResponse{Message: err.Error()}}); err != nil {
			s.logger.Debug("dropping decode error reply", log.String("session", sess.ID), log.Error(err))
		}
		return
	}

	origin := sess.origin(seq)
	switch r := req.(type) {
	case protocol.ApplyCommand:
		if _, err := s.log.Append(origin, r.Command); err != nil {
			s.logger.Warn("command append subscriber failed", log.String("origin", string(origin)), log.Error(err))
		}
	case protocol.List:
		s.pipeline.RequestList(origin)
	}
}
