// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package subscription

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	log "github.com/ChainSafe/log15"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tessera-net/tessera/node/rpc/modules"
	"github.com/tessera-net/tessera/node/types"
)

var logger = log.New("pkg", "rpc/subscription")

// sendBuffer bounds the per-connection outbound queue; a subscriber that
// cannot drain it in time is dropped
const sendBuffer = 64

var writeTimeout = time.Second * 5

var errUnknownSubscriptionMethod = errors.New("unknown subscription method")

// BlockAPI is the chain notification surface the listeners consume
type BlockAPI interface {
	GetImportedBlockNotifierChannel() chan *types.Block
	FreeImportedBlockNotifierChannel(ch chan *types.Block)
	GetFinalisedNotifierChannel() chan *types.FinalisationInfo
	FreeFinalisedNotifierChannel(ch chan *types.FinalisationInfo)
}

// Listener pumps one subscription's events until stopped
type Listener interface {
	Listen()
	Stop()
}

// WSConn is one websocket client and its subscriptions
type WSConn struct {
	Wsconn   *websocket.Conn
	BlockAPI BlockAPI

	mu            sync.Mutex
	Subscriptions map[string]Listener

	out  chan []byte
	done chan struct{}
	once sync.Once
}

// NewWSConn wraps an upgraded websocket connection
func NewWSConn(conn *websocket.Conn, blockAPI BlockAPI) *WSConn {
	return &WSConn{
		Wsconn:        conn,
		BlockAPI:      blockAPI,
		Subscriptions: make(map[string]Listener),
		out:           make(chan []byte, sendBuffer),
		done:          make(chan struct{}),
	}
}

type wsRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

type wsResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Result  interface{}     `json:"result"`
	ID      json.RawMessage `json:"id"`
}

type wsNotification struct {
	Jsonrpc string               `json:"jsonrpc"`
	Method  string               `json:"method"`
	Params  wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Result       interface{} `json:"result"`
	Subscription string      `json:"subscription"`
}

// HandleComm runs the connection: one reader, one writer, and a
// listener goroutine per subscription
func (c *WSConn) HandleComm() {
	go c.writeLoop()

	for {
		_, data, err := c.Wsconn.ReadMessage()
		if err != nil {
			c.Close()
			return
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			logger.Debug("failed to decode websocket request", "error", err)
			continue
		}

		if err := c.handleRequest(&req); err != nil {
			logger.Debug("failed to handle websocket request",
				"method", req.Method, "error", err)
		}
	}
}

func (c *WSConn) handleRequest(req *wsRequest) error {
	switch req.Method {
	case "chain_subscribeNewHeads", "chain_subscribeNewHead":
		return c.subscribe(req.ID, newBlockListener(c))
	case "chain_subscribeFinalizedHeads":
		return c.subscribe(req.ID, newFinalizedBlockListener(c))
	case "chain_unsubscribeNewHeads", "chain_unsubscribeFinalizedHeads":
		return c.unsubscribe(req)
	}
	return errUnknownSubscriptionMethod
}

func (c *WSConn) subscribe(id json.RawMessage, l Listener) error {
	subID := uuid.New().String()

	c.mu.Lock()
	c.Subscriptions[subID] = l
	c.mu.Unlock()

	if bl, ok := l.(interface{ setID(string) }); ok {
		bl.setID(subID)
	}

	go l.Listen()
	return c.send(&wsResponse{Jsonrpc: "2.0", Result: subID, ID: id})
}

func (c *WSConn) unsubscribe(req *wsRequest) error {
	if len(req.Params) == 0 {
		return c.send(&wsResponse{Jsonrpc: "2.0", Result: false, ID: req.ID})
	}

	var subID string
	if err := json.Unmarshal(req.Params[0], &subID); err != nil {
		return err
	}

	c.mu.Lock()
	l, ok := c.Subscriptions[subID]
	delete(c.Subscriptions, subID)
	c.mu.Unlock()

	if ok {
		l.Stop()
	}
	return c.send(&wsResponse{Jsonrpc: "2.0", Result: ok, ID: req.ID})
}

// send queues a frame; a full queue means the subscriber cannot keep up
// and the connection is dropped
func (c *WSConn) send(v interface{}) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case c.out <- enc:
		return nil
	case <-c.done:
		return nil
	default:
		logger.Warn("dropping slow websocket subscriber")
		c.Close()
		return nil
	}
}

func (c *WSConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.out:
			_ = c.Wsconn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Wsconn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close stops every listener and closes the socket
func (c *WSConn) Close() {
	c.once.Do(func() {
		close(c.done)

		c.mu.Lock()
		for id, l := range c.Subscriptions {
			l.Stop()
			delete(c.Subscriptions, id)
		}
		c.mu.Unlock()

		_ = c.Wsconn.Close()
	})
}

// BlockListener pushes every imported block header to the subscriber
type BlockListener struct {
	conn    *WSConn
	Channel chan *types.Block
	subID   string
	stop    chan struct{}
	once    sync.Once
}

func newBlockListener(c *WSConn) *BlockListener {
	return &BlockListener{
		conn:    c,
		Channel: c.BlockAPI.GetImportedBlockNotifierChannel(),
		stop:    make(chan struct{}),
	}
}

func (l *BlockListener) setID(id string) { l.subID = id }

// Listen implements Listener
func (l *BlockListener) Listen() {
	for {
		select {
		case <-l.stop:
			return
		case block, ok := <-l.Channel:
			if !ok {
				return
			}

			_ = l.conn.send(&wsNotification{
				Jsonrpc: "2.0",
				Method:  "chain_newHead",
				Params: wsNotificationParams{
					Result:       modules.HeaderToResponse(&block.Header),
					Subscription: l.subID,
				},
			})
		}
	}
}

// Stop implements Listener
func (l *BlockListener) Stop() {
	l.once.Do(func() {
		close(l.stop)
		l.conn.BlockAPI.FreeImportedBlockNotifierChannel(l.Channel)
	})
}

// FinalizedBlockListener pushes every finalised header to the subscriber
type FinalizedBlockListener struct {
	conn    *WSConn
	Channel chan *types.FinalisationInfo
	subID   string
	stop    chan struct{}
	once    sync.Once
}

func newFinalizedBlockListener(c *WSConn) *FinalizedBlockListener {
	return &FinalizedBlockListener{
		conn:    c,
		Channel: c.BlockAPI.GetFinalisedNotifierChannel(),
		stop:    make(chan struct{}),
	}
}

func (l *FinalizedBlockListener) setID(id string) { l.subID = id }

// Listen implements Listener
func (l *FinalizedBlockListener) Listen() {
	for {
		select {
		case <-l.stop:
			return
		case info, ok := <-l.Channel:
			if !ok {
				return
			}

			_ = l.conn.send(&wsNotification{
				Jsonrpc: "2.0",
				Method:  "chain_finalizedHead",
				Params: wsNotificationParams{
					Result:       modules.HeaderToResponse(&info.Header),
					Subscription: l.subID,
				},
			})
		}
	}
}

// Stop implements Listener
func (l *FinalizedBlockListener) Stop() {
	l.once.Do(func() {
		close(l.stop)
		l.conn.BlockAPI.FreeFinalisedNotifierChannel(l.Channel)
	})
}
