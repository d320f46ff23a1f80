// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package pool

import (
	"encoding/json"
	"fmt"

	"gitlab.com/postmarketOS/gnss_rtk/internal/observation"
)

// size of each client's send queue; messages for a full queue are dropped
const sendQueueLen = 64

type Client struct {
	Send chan []byte
}

func NewClient() *Client {
	return &Client{
		Send: make(chan []byte, sendQueueLen),
	}
}

type Pool struct {
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan []byte
	clients    map[*Client]bool
	count      chan int
	done       chan struct{}
}

func New() *Pool {
	return &Pool{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan []byte),
		clients:    make(map[*Client]bool),
		count:      make(chan int),
		done:       make(chan struct{}),
	}
}

// Start runs the pool until Stop is called. Unregistered clients have their
// Send channel closed.
func (p *Pool) Start() {
	for {
		select {
		case c := <-p.Register:
			p.clients[c] = true
		case c := <-p.Unregister:
			if p.clients[c] {
				delete(p.clients, c)
				close(c.Send)
			}
		case msg := <-p.Broadcast:
			for c := range p.clients {
				select {
				case c.Send <- msg:
				default:
					// slow client, drop
				}
			}
		case p.count <- len(p.clients):
		case <-p.done:
			for c := range p.clients {
				delete(p.clients, c)
				close(c.Send)
			}
			return
		}
	}
}

func (p *Pool) Stop() {
	close(p.done)
}

// Join registers c. It returns false if the pool is stopped.
func (p *Pool) Join(c *Client) bool {
	select {
	case p.Register <- c:
		return true
	case <-p.done:
		return false
	}
}

// Leave unregisters c unless the pool is stopped.
func (p *Pool) Leave(c *Client) {
	select {
	case p.Unregister <- c:
	case <-p.done:
	}
}

// Count returns the number of registered clients.
func (p *Pool) Count() int {
	select {
	case n := <-p.count:
		return n
	case <-p.done:
		return 0
	}
}

// Emit broadcasts the delta, JSON encoded, to every client.
func (p *Pool) Emit(d observation.Delta) error {
	msg, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("pool.Emit(): %w", err)
	}

	select {
	case p.Broadcast <- msg:
	case <-p.done:
	}
	return nil
}
