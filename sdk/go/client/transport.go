package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quic-go/quic-go"

	"github.com/dimensify/dimensify/internal/core/protocol"
)

const alpn = "dimensify-quic"

// Dial connects to a websocket endpoint such as ws://127.0.0.1:6210/ws.
func Dial(ctx context.Context, url string, config Config) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: config.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(config.MaxMessageSize)
	}
	return newClient(config, &wsTransport{conn: conn}, "ws"), nil
}

type wsTransport struct {
	conn   *websocket.Conn
	broken bool
}

func (t *wsTransport) roundTrip(ctx context.Context, body []byte) ([]byte, error) {
	if t.broken {
		return nil, ErrConnectionBroken
	}
	deadline, _ := ctx.Deadline()
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return nil, t.fail(err)
	}
	_ = t.conn.SetReadDeadline(deadline)
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, t.fail(err)
	}
	return data, nil
}

// fail marks the connection unusable; gorilla does not recover after a
// read or write error.
func (t *wsTransport) fail(err error) error {
	t.broken = true
	return classify(err)
}

func (t *wsTransport) close() error {
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}

// DialQUIC connects to a QUIC endpoint and opens the request stream.
func DialQUIC(ctx context.Context, addr string, config Config) (*Client, error) {
	tlsConf := config.TLSConfig
	if tlsConf == nil {
		tlsConf = &tls.Config{InsecureSkipVerify: true, NextProtos: []string{alpn}}
	}
	if config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return newClient(config, &quicTransport{
		conn:   conn,
		stream: stream,
		reader: protocol.NewFrameReader(stream),
		writer: protocol.NewFrameWriter(stream),
	}, "quic"), nil
}

type quicTransport struct {
	conn   *quic.Conn
	stream *quic.Stream
	reader *protocol.FrameReader
	writer *protocol.FrameWriter
	seq    uint64
	broken bool
}

func (t *quicTransport) roundTrip(ctx context.Context, body []byte) ([]byte, error) {
	if t.broken {
		return nil, ErrConnectionBroken
	}
	t.seq++
	deadline, _ := ctx.Deadline()
	_ = t.stream.SetDeadline(deadline)
	if err := t.writer.WriteFrame(protocol.Frame{Seq: t.seq, Body: body}); err != nil {
		t.broken = true
		return nil, classify(err)
	}
	f, err := t.reader.ReadFrame()
	if err != nil {
		t.broken = true
		return nil, classify(err)
	}
	if f.Seq != t.seq {
		t.broken = true
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrSequenceMismatch, t.seq, f.Seq)
	}
	return f.Body, nil
}

func (t *quicTransport) close() error {
	_ = t.stream.Close()
	return t.conn.CloseWithError(0, "client closed")
}

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnectionBroken, err)
}
