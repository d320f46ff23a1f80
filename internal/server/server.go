// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gitlab.com/postmarketOS/gnss_rtk/internal/pool"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server streams observation deltas from the connPool to websocket clients
// connected at /stream.
type Server struct {
	addr     string
	connPool *pool.Pool
	http     *http.Server
}

func New(addr string, connPool *pool.Pool) (s *Server) {
	s = &Server{
		addr:     addr,
		connPool: connPool,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server.Start(): %w", err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()

	log.Printf("server: streaming observations at ws://%s/stream", ln.Addr())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Serve(): %w", err)
	}
	return nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: upgrade failed: %v", err)
		return
	}

	client := pool.NewClient()
	if !s.connPool.Join(client) {
		conn.Close()
		return
	}
	log.Println("server: new client connected")

	go s.readPump(conn, client)
	s.clientConnection(conn, client)
}

// Routine run for each client connection
func (s *Server) clientConnection(conn *websocket.Conn, c *pool.Client) {
	defer conn.Close()

	for msg := range c.Send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}

	log.Println("server: client disconnected")
}

// readPump discards anything the client sends and unregisters it once the
// connection goes away.
func (s *Server) readPump(conn *websocket.Conn, c *pool.Client) {
	defer s.connPool.Leave(c)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("server: client read error: %v", err)
			}
			return
		}
	}
}
