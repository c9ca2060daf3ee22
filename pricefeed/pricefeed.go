// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

// Package pricefeed is a collab.PriceUpdater adapter: a long-lived
// gorilla/websocket client to an upstream fiat-conversion price feed,
// refreshing a cached collab.Prices as updates arrive. No example repo
// in the retrieval pack runs a price feed of its own; the dial/read-
// loop/reconnect shape is grounded on the teacher's own
// golang.org/x/net/websocket client in pubsub/democlient, but uses
// gorilla/websocket (already depended on for its ping/pong control-frame
// support, which this long-lived outbound client needs to detect a
// stalled upstream feed).
package pricefeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blockwatch/mempoolhub/collab"
)

const (
	dialRetryDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
)

// Client maintains a websocket connection to url, caching the most
// recently received Prices.
type Client struct {
	url string

	mtx    sync.RWMutex
	latest *collab.Prices
}

var _ collab.PriceUpdater = (*Client)(nil)

// New constructs a Client for the price feed at url. Call Run in its own
// goroutine to begin maintaining the connection.
func New(url string) *Client {
	return &Client{url: url}
}

// GetLatestPrices returns the most recently received Prices, satisfying
// collab.PriceUpdater. Returns nil, nil before the first update arrives.
func (c *Client) GetLatestPrices(ctx context.Context) (*collab.Prices, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.latest, nil
}

// Run dials the price feed and processes updates until ctx is cancelled,
// reconnecting with a fixed delay on any error.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.runOnce(ctx); err != nil {
			log.Warnf("price feed connection error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(dialRetryDelay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}

	done := make(chan struct{})
	go c.pingLoop(conn, done)
	defer close(done)

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var rates map[string]float64
		if err := json.Unmarshal(raw, &rates); err != nil {
			log.Debugf("price feed: malformed update: %v", err)
			continue
		}
		c.mtx.Lock()
		c.latest = &collab.Prices{Time: time.Now(), Rate: rates}
		c.mtx.Unlock()
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
