package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
)

func (s *Server) listenQUIC() (*quic.Listener, error) {
	tlsConf := s.config.TLSConfig
	if tlsConf == nil {
		var err error
		tlsConf, err = GenerateSelfSignedTLS()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrListenerFailed, err)
		}
	}
	ln, err := quic.ListenAddr(s.config.QUICAddr, tlsConf, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}
	return ln, nil
}

func (s *Server) acceptQUIC(ctx context.Context, ln *quic.Listener) error {
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return err
		}
		go s.handleQUICConn(ctx, conn)
	}
}

// handleQUICConn serves one controller over the first bidirectional stream
// it opens. Requests and responses are length-prefixed frames; a response
// carries the seq of the request it answers.
func (s *Server) handleQUICConn(ctx context.Context, conn *quic.Conn) {
	logger := s.logger.With(log.String("remote", conn.RemoteAddr().String()), log.String("transport", "quic"))

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		logger.Debug("no stream opened", log.Error(err))
		_ = conn.CloseWithError(0, "no stream")
		return
	}

	sess := newSession("quic", s.config.SendBuffer)
	s.sessions.add(sess)
	logger = logger.With(log.String("session", sess.ID))
	logger.Info("controller connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeQUIC(conn, stream, sess, logger)
	}()

	reader := protocol.NewFrameReader(stream)
	for {
		f, err := reader.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("quic read failed", log.Error(err))
			}
			break
		}
		if int64(len(f.Body)) > s.config.MaxMessageSize {
			_ = s.send(sess, reply{seq: f.Seq, resp: protocol.ErrorResponse{Message: "message too large"}})
			continue
		}
		s.handleRequest(sess, f.Seq, f.Body)
	}

	s.sessions.remove(sess)
	<-writerDone
	logger.Info("controller disconnected")
}

func (s *Server) writeQUIC(conn *quic.Conn, stream *quic.Stream, sess *ClientSession, logger log.Log) {
	writer := protocol.NewFrameWriter(stream)
	for {
		select {
		case <-sess.done:
			_ = stream.Close()
			_ = conn.CloseWithError(0, "session closed")
			return
		case r := <-sess.out:
			body, err := json.Marshal(r.resp)
			if err != nil {
				logger.Error("failed to encode response", log.Error(err))
				continue
			}
			_ = stream.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := writer.WriteFrame(protocol.Frame{Seq: r.seq, Body: body}); err != nil {
				logger.Debug("quic write failed", log.Error(err))
				s.sessions.remove(sess)
				_ = conn.CloseWithError(1, "write failed")
				return
			}
		}
	}
}
