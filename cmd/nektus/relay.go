// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alexweingart/nektus-sub006/exchange"
	"github.com/alexweingart/nektus-sub006/relay/relaysrv"
	"github.com/spf13/cobra"
)

func newRelayCmd(e *env) *cobra.Command {
	relay := &cobra.Command{Use: "relay", Short: "Reference relay service"}

	var users map[string]string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the relay on the configured listen address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := relaysrv.New(
				relaysrv.WithWindow(e.cfg.Relay.MatchWindow.Std()),
				relaysrv.WithLogger(e.log),
			)
			for token, name := range users {
				srv.Register(token, exchange.Profile{
					UserID: name,
					ContactEntries: []exchange.ContactEntry{{
						FieldType: "name",
						Value:     name,
						Section:   exchange.SectionUniversal,
						IsVisible: true,
					}},
				})
			}

			h, err := e.relayHandler(srv)
			if err != nil {
				return err
			}
			return listen(cmd.Context(), e, &http.Server{
				Addr:              e.cfg.Relay.Listen,
				Handler:           h,
				ReadHeaderTimeout: 10 * time.Second,
			})
		},
	}
	serve.Flags().StringToStringVar(
		&users,
		"user",
		nil,
		"register a user as auth-token=user-id (repeatable)",
	)

	relay.AddCommand(serve)
	return relay
}

// Serve until the context is cancelled, then shut down gracefully.
func listen(ctx context.Context, e *env, srv *http.Server) error {
	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()
	e.log.Info("relay listening", "address", srv.Addr)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
