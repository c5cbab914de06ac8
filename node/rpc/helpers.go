// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/rpc/v2"
	"github.com/jpillora/ipfilter"

	"github.com/tessera-net/tessera/node/rpc/modules"
)

// LocalhostFilter allows only loopback callers
func LocalhostFilter() *ipfilter.IPFilter {
	return ipfilter.New(ipfilter.Options{
		BlockByDefault: true,
		AllowedIPs:     []string{"127.0.0.1", "::1"},
	})
}

// LocalRequestOnly rejects requests from non-loopback addresses
func LocalRequestOnly(r *rpc.RequestInfo, _ interface{}) error {
	ip, _, err := net.SplitHostPort(r.Request.RemoteAddr)
	if err != nil {
		return errors.New("unable to parse caller address")
	}

	if LocalhostFilter().Allowed(ip) {
		return nil
	}
	return errors.New("external HTTP request refused")
}

// snakeCaseFormat maps the dispatched "service.MethodName" back to the
// wire form "service_methodName" for the unsafe-method check
func snakeCaseFormat(method string) (string, error) {
	parts := strings.Split(method, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("invalid rpc method format %s, should be 'module.FunctionName'", method)
	}

	service, funcName := parts[0], parts[1]
	funcName = strings.ToLower(string(funcName[0])) + funcName[1:]
	return service + "_" + funcName, nil
}

func rpcValidator(cfg *HTTPServerConfig, validate *validator.Validate) func(r *rpc.RequestInfo, i interface{}) error {
	return func(r *rpc.RequestInfo, v interface{}) error {
		rpcmethod, err := snakeCaseFormat(r.Method)
		if err != nil {
			return err
		}

		if modules.IsUnsafe(rpcmethod) && !cfg.RPCUnsafe {
			return fmt.Errorf("unsafe rpc method %s cannot be reachable", rpcmethod)
		}

		if err = validate.Struct(v); err != nil {
			return err
		}

		if !cfg.RPCExternal {
			return LocalRequestOnly(r, v)
		}
		return nil
	}
}
