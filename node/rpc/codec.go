// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

// UnderscoreCodec accepts methods in the conventional snake form
// "chain_getHeader" and rewrites them to the "chain.GetHeader" form the
// rpc server dispatches on, then defers to the JSON 2.0 codec.
type UnderscoreCodec struct {
	codec *json2.Codec
}

// NewUnderscoreCodec creates the request codec
func NewUnderscoreCodec() *UnderscoreCodec {
	return &UnderscoreCodec{codec: json2.NewCodec()}
}

// NewRequest rewrites the method name in the request body and hands the
// request to the underlying JSON 2.0 codec
func (c *UnderscoreCodec) NewRequest(r *http.Request) rpc.CodecRequest {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return c.codec.NewRequest(r)
	}
	_ = r.Body.Close()

	rewritten, ok := rewriteMethod(body)
	if !ok {
		rewritten = body
	}

	r.Body = io.NopCloser(bytes.NewReader(rewritten))
	return c.codec.NewRequest(r)
}

// rewriteMethod converts the body's "service_methodName" into
// "service.MethodName", preserving every other field untouched
func rewriteMethod(body []byte) ([]byte, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, false
	}

	var method string
	if err := json.Unmarshal(fields["method"], &method); err != nil {
		return nil, false
	}

	converted, ok := convertMethod(method)
	if !ok {
		return nil, false
	}

	enc, err := json.Marshal(converted)
	if err != nil {
		return nil, false
	}
	fields["method"] = enc

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, false
	}
	return out, true
}

func convertMethod(method string) (string, bool) {
	idx := strings.Index(method, "_")
	if idx <= 0 || idx == len(method)-1 {
		return "", false
	}

	service, fn := method[:idx], method[idx+1:]
	fn = strings.ToUpper(fn[:1]) + fn[1:]
	return service + "." + fn, true
}
