// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 PeptideWorks

package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// maxLineLen bounds a single command line. Bytes past the bound are
// dropped until the next terminator.
const maxLineLen = 128

type request struct {
	line  string
	reply chan string
}

// Server funnels command lines from every front-end through a single
// dispatch goroutine. That one goroutine is the only path to the
// devices, so bus transactions are serialized structurally: concurrent
// bus access is impossible no matter how many transports are attached.
type Server struct {
	dispatcher *Dispatcher
	log        log.FieldLogger
	requests   chan request
}

// New returns a server around the given dispatcher.
func New(dispatcher *Dispatcher, logger log.FieldLogger) *Server {
	return &Server{
		dispatcher: dispatcher,
		log:        logger,
		requests:   make(chan request),
	}
}

// Run services the request queue until the context is cancelled. Every
// transport blocks per command in Submit while this loop works; a long
// bus transaction delays other transports by at most its own bounded
// timeout.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			req.reply <- s.dispatcher.Dispatch(req.line)
		}
	}
}

// Submit queues one command line and waits for its response.
func (s *Server) Submit(ctx context.Context, line string) (string, error) {
	req := request{line: line, reply: make(chan string, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ServeTCP accepts network clients one at a time and services each for
// the life of its connection. Commands still interleave fairly with the
// serial console because both go through the same request queue.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tcp accept: %w", err)
		}
		s.log.WithField("remote", conn.RemoteAddr().String()).Info("network client connected")
		s.serveStream(ctx, conn)
		conn.Close()
		s.log.WithField("remote", conn.RemoteAddr().String()).Info("network client disconnected")
		if ctx.Err() != nil {
			return nil
		}
	}
}

// serveStream runs the line protocol over one byte stream until EOF or
// cancellation.
func (s *Server) serveStream(ctx context.Context, rw io.ReadWriter) {
	buf := make([]byte, 256)
	line := make([]byte, 0, maxLineLen)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := rw.Read(buf)
		for _, b := range buf[:n] {
			switch b {
			case '\r', '\n':
				if len(line) == 0 {
					continue
				}
				resp, serr := s.Submit(ctx, string(line))
				line = line[:0]
				if serr != nil {
					return
				}
				if _, werr := io.WriteString(rw, resp+"\r\n"); werr != nil {
					s.log.WithError(werr).Warn("response write failed")
					return
				}
			default:
				if len(line) < maxLineLen {
					line = append(line, b)
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				s.log.WithError(err).Debug("stream read ended")
			}
			return
		}
	}
}

// ServeSerial runs the line protocol over the operator console port.
// The port must have a read timeout configured so an idle console never
// wedges shutdown; timed-out reads surface here as (0, nil).
func (s *Server) ServeSerial(ctx context.Context, console io.ReadWriter) error {
	s.serveStream(ctx, console)
	return ctx.Err()
}

var upgrader = websocket.Upgrader{
	// The line protocol carries no credentials or origin trust; anyone
	// who can reach the listener may command the instrument, exactly as
	// with the raw TCP transport.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSHandler exposes the identical line protocol over WebSocket: one
// text message in, one response message out.
func (s *Server) WSHandler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.WithError(err).Warn("websocket upgrade failed")
			return
		}
		defer conn.Close()
		s.log.WithField("remote", conn.RemoteAddr().String()).Info("websocket client connected")

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			line := strings.TrimSpace(string(data))
			if line == "" {
				continue
			}
			resp, err := s.Submit(ctx, line)
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(resp)); err != nil {
				return
			}
		}
	})
}
