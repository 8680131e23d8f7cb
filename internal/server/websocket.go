package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleWebSocket serves a controller: one JSON ProtoRequest per text
// message in, one JSON ProtoResponse per text message out.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}
	conn.SetReadLimit(s.config.MaxMessageSize)

	sess := newSession("ws", s.config.SendBuffer)
	s.sessions.add(sess)
	logger := s.logger.With(log.String("session", sess.ID), log.String("remote", conn.RemoteAddr().String()))
	logger.Info("controller connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeWebSocket(conn, sess, logger)
	}()

	var seq uint64
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed", log.Error(err))
			}
			break
		}
		seq++
		s.handleRequest(sess, seq, data)
	}

	s.sessions.remove(sess)
	<-writerDone
	_ = conn.Close()
	logger.Info("controller disconnected")
}

func (s *Server) writeWebSocket(conn *websocket.Conn, sess *ClientSession, logger log.Log) {
	for {
		select {
		case <-sess.done:
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
			return
		case r := <-sess.out:
			data, err := json.Marshal(r.resp)
			if err != nil {
				logger.Error("failed to encode response", log.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("websocket write failed", log.Error(err))
				s.sessions.remove(sess)
				_ = conn.Close()
				return
			}
		}
	}
}

// handleTelemetry ingests one TelemetryEvent per message. Bad messages are
// logged and skipped; nothing is sent back.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if s.telemetry == nil {
		http.Error(w, "telemetry disabled", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.config.MaxMessageSize)

	logger := s.logger.With(log.String("remote", conn.RemoteAddr().String()), log.String("stream", "telemetry"))
	for n := 1; ; n++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		e, err := protocol.DecodeTelemetryEvent(data)
		if err == nil {
			err = s.telemetry.Push(e)
		}
		if err != nil {
			logger.Warn("failed to ingest telemetry", log.Int("message", n), log.Error(err))
		}
	}
}
