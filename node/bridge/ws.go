// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// event frame types
const (
	eventImported  = "imported"
	eventFinalized = "finalized"
)

// subscriberBuffer bounds each subscriber's outbound queue; one that
// cannot drain it is dropped
const subscriberBuffer = 64

var wsWriteTimeout = time.Second * 5

var errNoEndpoint = errors.New("ws bridge requires an endpoint")

func init() {
	Register("ws", newWSAdapter)
}

// eventFrame is the JSON frame pushed to bridge subscribers
type eventFrame struct {
	Type   string `json:"type"`
	Hash   string `json:"hash"`
	Number uint   `json:"number"`
	Round  uint64 `json:"round,omitempty"`
}

// wsAdapter serves chain events over a websocket endpoint
type wsAdapter struct {
	endpoint string
	lnAddr   string
	server   *http.Server

	mu          sync.Mutex
	subscribers map[string]chan []byte

	stopped chan struct{}
	once    sync.Once
}

func newWSAdapter(cfg *Config) (Adapter, error) {
	if cfg.Endpoint == "" {
		return nil, errNoEndpoint
	}

	return &wsAdapter{
		endpoint:    cfg.Endpoint,
		subscribers: make(map[string]chan []byte),
		stopped:     make(chan struct{}),
	}, nil
}

// Name implements Adapter
func (a *wsAdapter) Name() string { return "ws" }

// Start implements Adapter. The listener is opened synchronously so a
// bad endpoint surfaces as a startup error, then serving and event
// pumping continue in the background.
func (a *wsAdapter) Start(ctx context.Context, snap *Snapshot) error {
	ln, err := net.Listen("tcp", a.endpoint)
	if err != nil {
		return err
	}
	a.lnAddr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleSubscriber)
	a.server = &http.Server{Handler: mux}

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("ws bridge server stopped", "error", err)
		}
	}()

	imported := snap.BlockState.GetImportedBlockNotifierChannel()
	finalised := snap.BlockState.GetFinalisedNotifierChannel()

	go func() {
		defer snap.BlockState.FreeImportedBlockNotifierChannel(imported)
		defer snap.BlockState.FreeFinalisedNotifierChannel(finalised)

		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stopped:
				return
			case block, ok := <-imported:
				if !ok {
					return
				}
				a.broadcast(&eventFrame{
					Type:   eventImported,
					Hash:   block.Header.Hash().String(),
					Number: block.Header.Number,
				})
			case info, ok := <-finalised:
				if !ok {
					return
				}
				a.broadcast(&eventFrame{
					Type:   eventFinalized,
					Hash:   info.Header.Hash().String(),
					Number: info.Header.Number,
					Round:  info.Round,
				})
			}
		}
	}()

	logger.Info("ws bridge listening", "endpoint", ln.Addr())
	return nil
}

// Stop implements Adapter
func (a *wsAdapter) Stop() error {
	a.once.Do(func() { close(a.stopped) })

	a.mu.Lock()
	for id, ch := range a.subscribers {
		close(ch)
		delete(a.subscribers, id)
	}
	a.mu.Unlock()

	if a.server == nil {
		return nil
	}
	return a.server.Close()
}

func (a *wsAdapter) handleSubscriber(w http.ResponseWriter, r *http.Request) {
	upg := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	conn, err := upg.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("ws bridge upgrade failed", "error", err)
		return
	}

	id := uuid.New().String()
	ch := make(chan []byte, subscriberBuffer)

	a.mu.Lock()
	a.subscribers[id] = ch
	a.mu.Unlock()

	logger.Debug("ws bridge subscriber connected", "id", id)

	go func() {
		defer func() {
			a.drop(id)
			_ = conn.Close()
		}()

		for frame := range ch {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}()
}

// broadcast fans an event out to every subscriber, dropping any whose
// queue is full
func (a *wsAdapter) broadcast(ev *eventFrame) {
	enc, err := json.Marshal(ev)
	if err != nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for id, ch := range a.subscribers {
		select {
		case ch <- enc:
		default:
			logger.Warn("dropping slow bridge subscriber", "id", id)
			close(ch)
			delete(a.subscribers, id)
		}
	}
}

func (a *wsAdapter) drop(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ch, ok := a.subscribers[id]; ok {
		close(ch)
		delete(a.subscribers, id)
	}
}
