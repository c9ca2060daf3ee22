// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

package pubsub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/blockwatch/mempoolhub/fanout"
	"github.com/blockwatch/mempoolhub/pubsub/types"
	"golang.org/x/net/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 20 * time.Second

	// MaxPayloadBytes bounds a single inbound frame (spec section 4.1:
	// oversized requests are rejected, not just truncated).
	MaxPayloadBytes = 1 << 20
)

// Connection is one live WebSocket client: its session, the underlying
// socket, and a write mutex serializing the engine's fan-out pushes against
// the receive loop's own one-shot replies. It implements fanout.Client.
type Connection struct {
	ws      *websocket.Conn
	session *types.ClientSession
	sendMtx sync.Mutex
}

var _ fanout.Client = (*Connection)(nil)

// Session satisfies fanout.Client.
func (c *Connection) Session() *types.ClientSession {
	return c.session
}

// Send satisfies fanout.Client: writes payload as a pre-serialized text
// frame, returning false (and never retrying) if the write failed, the
// same "don't bother sending again" contract as the teacher's signal-or-
// unregister select on the hub spoke channel.
func (c *Connection) Send(payload string) bool {
	c.sendMtx.Lock()
	defer c.sendMtx.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil && !types.IsWSClosedErr(err) {
		log.Warnf("SetWriteDeadline: %v", err)
	}
	msg := types.WebSocketMessage{Message: payload}
	if err := websocket.JSON.Send(c.ws, msg); err != nil {
		if !types.IsWSClosedErr(err) {
			log.Debugf("Send failed: %v", err)
		}
		return false
	}
	return true
}

// Server wires the Event Fan-Out Engine to incoming WebSocket connections:
// each accepted socket is registered with the engine, decoded frames are
// applied to its session via Decoder, and the one-shot per-frame response
// is written back directly (push updates arrive separately, via the
// engine calling Connection.Send from its own goroutine).
type Server struct {
	Engine  *fanout.Engine
	Decoder *Decoder
}

// NewServer constructs a Server bound to engine, with its own Decoder.
func NewServer(engine *fanout.Engine) *Server {
	return &Server{Engine: engine, Decoder: NewDecoder(engine)}
}

// closeWS attempts to close a websocket.Conn, logging errors other than
// those expected on a routine disconnect.
func closeWS(ws *websocket.Conn) {
	if err := ws.Close(); err != nil && !types.IsWSClosedErr(err) && !types.IsIOTimeoutErr(err) {
		log.Errorf("Failed to close websocket: %v", err)
	}
}

// receiveLoop reads frames from conn until the socket closes, applying
// each to the session via Decoder and replying with the resulting one-shot
// response. Mirrors the teacher's pubsub.receiveLoop in structure: a
// blocking JSON receive per iteration, guarded by a rolling read deadline.
func (s *Server) receiveLoop(conn *Connection) {
	ws := conn.ws
	defer closeWS(ws)
	defer s.Engine.Unregister(conn)
	defer conn.session.Reset()

	for {
		if err := ws.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil && !types.IsWSClosedErr(err) {
			log.Warnf("SetReadDeadline: %v", err)
		}

		var msg types.WebSocketMessage
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			if types.IsIOTimeoutErr(err) {
				continue
			}
			if err == websocket.ErrFrameTooLarge {
				log.Debug("Request size over limit")
				continue
			}
			if err.Error() != "EOF" {
				log.Warnf("websocket client receive error: %v", err)
			}
			return
		}

		if len(msg.Message) > MaxPayloadBytes {
			log.Debug("Request size over limit")
			continue
		}

		response, ok := s.Decoder.Decode(context.Background(), conn.session, []byte(msg.Message))
		if !ok {
			log.Debugf("malformed client frame, closing connection")
			return
		}
		if response == "{}" {
			continue
		}
		if !conn.Send(response) {
			return
		}
	}
}

// WebSocketHandler is the http.HandlerFunc for new connections: it
// registers a Connection with the Engine and runs its receive loop until
// the socket closes.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	wsHandler := websocket.Handler(func(ws *websocket.Conn) {
		ws.MaxPayloadBytes = MaxPayloadBytes

		conn := &Connection{
			ws:      ws,
			session: types.NewClientSession(r.RemoteAddr),
		}
		s.Engine.Register(conn)
		s.receiveLoop(conn)
	})

	// Use a websocket.Server to avoid checking Origin, matching the
	// teacher's pubsub.WebSocketHandler.
	wsServer := websocket.Server{Handler: wsHandler}
	wsServer.ServeHTTP(w, r)
}
