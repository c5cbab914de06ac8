// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"

	log "github.com/ChainSafe/log15"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/websocket"

	"github.com/tessera-net/tessera/lib/common"
	"github.com/tessera-net/tessera/lib/keystore"
	"github.com/tessera-net/tessera/node/rpc/modules"
	"github.com/tessera-net/tessera/node/rpc/subscription"
)

var logger = log.New("pkg", "rpc")

// HTTPServerConfig configures the RPC surface
type HTTPServerConfig struct {
	LogLvl log.Lvl

	BlockAPI            modules.BlockAPI
	NetworkAPI          modules.NetworkAPI
	CoreAPI             modules.CoreAPI
	TransactionQueueAPI modules.TransactionStateAPI
	BlockFinalityAPI    modules.BlockFinalityAPI
	SystemAPI           modules.SystemAPI
	Keystore            *keystore.GlobalKeystore

	RPCHost     string
	RPCPort     uint32
	RPCExternal bool
	RPCUnsafe   bool
	WS          bool
	WSPort      uint32
	WSExternal  bool
	Modules     []string
}

// HTTPServer serves JSON-RPC over HTTP and subscriptions over websocket
type HTTPServer struct {
	logger       log.Logger
	rpcServer    *rpc.Server
	serverConfig *HTTPServerConfig

	mu      sync.Mutex
	wsConns []*subscription.WSConn
}

// NewHTTPServer creates the server and registers the configured modules
func NewHTTPServer(cfg *HTTPServerConfig) *HTTPServer {
	h := log.StreamHandler(os.Stdout, log.TerminalFormat())
	logger.SetHandler(log.LvlFilterHandler(cfg.LogLvl, h))

	server := &HTTPServer{
		logger:       logger,
		rpcServer:    rpc.NewServer(),
		serverConfig: cfg,
	}

	server.RegisterModules(cfg.Modules)
	return server
}

// RegisterModules registers the handlers for the given module names
func (h *HTTPServer) RegisterModules(mods []string) {
	for _, mod := range mods {
		h.logger.Debug("enabling rpc module", "module", mod)

		var srvc interface{}
		switch mod {
		case "system":
			srvc = modules.NewSystemModule(h.serverConfig.NetworkAPI,
				h.serverConfig.SystemAPI, h.serverConfig.TransactionQueueAPI)
		case "chain":
			srvc = modules.NewChainModule(h.serverConfig.BlockAPI)
		case "author":
			srvc = modules.NewAuthorModule(h.logger, h.serverConfig.CoreAPI,
				h.serverConfig.TransactionQueueAPI, h.serverConfig.Keystore)
		case "grandpa":
			srvc = modules.NewGrandpaModule(h.serverConfig.BlockAPI,
				h.serverConfig.BlockFinalityAPI)
		default:
			h.logger.Warn("unrecognised module", "module", mod)
			continue
		}

		if err := h.rpcServer.RegisterService(srvc, mod); err != nil {
			h.logger.Warn("failed to register module", "module", mod, "error", err)
		}
	}
}

// Start begins serving HTTP and, when enabled, websocket subscriptions
func (h *HTTPServer) Start() error {
	h.rpcServer.RegisterCodec(NewUnderscoreCodec(), "application/json")
	h.rpcServer.RegisterCodec(NewUnderscoreCodec(), "application/json;charset=UTF-8")

	validate := validator.New()
	validate.RegisterCustomTypeFunc(common.HashValidator, common.Hash{})
	h.rpcServer.RegisterValidateRequestFunc(rpcValidator(h.serverConfig, validate))

	h.logger.Info("starting HTTP server...", "port", h.serverConfig.RPCPort)
	r := mux.NewRouter()
	r.Handle("/", h.rpcServer)

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", h.serverConfig.RPCHost, h.serverConfig.RPCPort), r); err != nil {
			h.logger.Error("http error", "error", err)
		}
	}()

	if !h.serverConfig.WS {
		return nil
	}

	h.logger.Info("starting websocket server...", "port", h.serverConfig.WSPort)
	ws := mux.NewRouter()
	ws.Handle("/", h)

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", h.serverConfig.RPCHost, h.serverConfig.WSPort), ws); err != nil {
			h.logger.Error("websocket error", "error", err)
		}
	}()

	return nil
}

// Stop closes every websocket connection and its subscriptions
func (h *HTTPServer) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conn := range h.wsConns {
		conn.Close()
	}
	h.wsConns = nil
	return nil
}

// ServeHTTP upgrades websocket connections for subscription handling
func (h *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upg := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if h.serverConfig.WSExternal {
				return true
			}

			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				logger.Error("unable to parse websocket caller address", "error", err)
				return false
			}

			if LocalhostFilter().Allowed(ip) {
				return true
			}

			logger.Debug("external websocket request refused", "addr", r.RemoteAddr)
			return false
		},
	}

	ws, err := upg.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	wsc := subscription.NewWSConn(ws, h.serverConfig.BlockAPI)

	h.mu.Lock()
	h.wsConns = append(h.wsConns, wsc)
	h.mu.Unlock()

	go wsc.HandleComm()
}
