// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alexweingart/nektus-sub006/config"
	"github.com/alexweingart/nektus-sub006/notify"
	"github.com/alexweingart/nektus-sub006/relay/relaysrv"
	"github.com/alexweingart/nektus-sub006/statestore"
)

func (e *env) openStore(ctx context.Context) (statestore.Store, error) {
	opts := []statestore.Option{
		statestore.WithTTL(e.cfg.Store.TTL.Std()),
		statestore.WithLogger(e.log),
	}
	switch e.cfg.Store.Type {
	case config.StoreSQLite:
		return statestore.OpenSQLite(ctx, e.cfg.Store.Path, opts...)
	default:
		return statestore.NewMemory(opts...), nil
	}
}

// Open the match event sink, or return nil when no broker is configured.
func (e *env) openSink(ctx context.Context) (*notify.Sink, error) {
	n := e.cfg.Notify
	if n.Broker == "" {
		return nil, nil
	}

	opts := []notify.Option{
		notify.WithTopicPrefix(n.TopicPrefix),
		notify.WithLogger(e.log),
	}
	if n.ClientID != "" {
		opts = append(opts, notify.WithClientID(n.ClientID))
	}
	if n.Username != "" {
		opts = append(opts, notify.WithUsernamePassword{
			Username: n.Username,
			Password: []byte(n.Password),
		})
	}

	sink, err := notify.NewSink(notify.TCPConnection(n.Broker), opts...)
	if err != nil {
		return nil, err
	}
	if err := sink.Connect(ctx); err != nil {
		_ = sink.Close()
		return nil, err
	}
	return sink, nil
}

// Mount the relay under the path of the configured base URL, so that the
// default client configuration reaches it.
func (e *env) relayHandler(srv *relaysrv.Server) (http.Handler, error) {
	base, err := url.Parse(e.cfg.Relay.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay base URL: %w", err)
	}
	prefix := strings.TrimSuffix(base.Path, "/")
	if prefix == "" {
		return srv, nil
	}
	return http.StripPrefix(prefix, srv), nil
}
