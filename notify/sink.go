// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/alexweingart/nektus-sub006/internal/log"
	"github.com/alexweingart/nektus-sub006/internal/retry"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

// Sink publishes match events over MQTT. The broker connection is opened
// lazily and re-established on the next publish after it is lost.
type Sink struct {
	provider ConnectionProvider
	opts     Options
	clock    wallclock.WallClock
	log      logger

	client *paho.Client
	closed bool
	mu     sync.Mutex
}

const contentType = "application/json"

// NewSink creates a sink that connects through the given provider.
func NewSink(provider ConnectionProvider, opt ...Option) (*Sink, error) {
	if provider == nil {
		return nil, errors.New("notify: nil connection provider")
	}

	opts := Options{
		TopicPrefix:   DefaultTopicPrefix,
		QoS:           DefaultQoS,
		MessageExpiry: DefaultMessageExpiry,
		KeepAlive:     DefaultKeepAlive,
	}
	opts.Apply(opt)

	if opts.QoS > 1 {
		return nil, fmt.Errorf("notify: unsupported QoS %d", opts.QoS)
	}
	if opts.ClientID == "" {
		opts.ClientID = "nektus-" + uuid.NewString()[:8]
	}
	if opts.Retry == nil {
		opts.Retry = &retry.ExponentialBackoff{
			MaxAttempts: 3,
			Clock:       opts.Clock,
			Logger:      opts.Logger,
		}
	}

	return &Sink{
		provider: provider,
		opts:     opts,
		clock:    wallclock.Or(opts.Clock),
		log:      logger{log.Wrap(opts.Logger).WithClock(wallclock.Or(opts.Clock))},
	}, nil
}

// Connect eagerly opens the broker connection.
func (s *Sink) Connect(ctx context.Context) error {
	_, err := s.connection(ctx)
	return err
}

// Publish sends the event to the topic of its user.
func (s *Sink) Publish(ctx context.Context, e Event) error {
	if e.UserID == "" {
		return errors.New("notify: event has no user")
	}
	if e.MatchedAt.IsZero() {
		e.MatchedAt = s.clock.Now().UTC()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	format := byte(1)
	pub := &paho.Publish{
		QoS:     s.opts.QoS,
		Topic:   Topic(s.opts.TopicPrefix, e.UserID),
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType:   contentType,
			PayloadFormat: &format,
		},
	}
	if s.opts.MessageExpiry > 0 {
		exp := uint32(math.Ceil(s.opts.MessageExpiry.Seconds()))
		pub.Properties.MessageExpiry = &exp
	}

	return s.opts.Retry.Start(ctx, "publish", func(ctx context.Context) (bool, error) {
		client, err := s.connection(ctx)
		if err != nil {
			return !errors.Is(err, ErrClosed), err
		}
		if _, err := client.Publish(ctx, pub); err != nil {
			s.drop(client)
			return ctx.Err() == nil, err
		}
		s.log.published(ctx, pub)
		return false, nil
	})
}

// Close disconnects from the broker. Further publishes fail with ErrClosed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.client == nil {
		return nil
	}
	client := s.client
	s.client = nil
	return client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

func (s *Sink) connection(ctx context.Context) (*paho.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.client != nil {
		return s.client, nil
	}

	conn, err := s.provider(ctx)
	if err != nil {
		return nil, err
	}

	var client *paho.Client
	client = paho.NewClient(paho.ClientConfig{
		ClientID: s.opts.ClientID,
		Conn:     conn,
		OnClientError: func(err error) {
			s.log.lost(context.Background(), err)
			go s.drop(client)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			s.log.serverDisconnect(context.Background(), d)
			go s.drop(client)
		},
	})

	connect := &paho.Connect{
		ClientID:   s.opts.ClientID,
		CleanStart: true,
		KeepAlive:  uint16(s.opts.KeepAlive.Seconds()),
	}
	if s.opts.Username != "" {
		connect.Username = s.opts.Username
		connect.UsernameFlag = true
	}
	if len(s.opts.Password) > 0 {
		connect.Password = s.opts.Password
		connect.PasswordFlag = true
	}

	if _, err := client.Connect(ctx, connect); err != nil {
		_ = conn.Close()
		return nil, &ConnectionError{Message: "connect refused", Err: err}
	}

	s.client = client
	s.log.connected(ctx, s.opts.ClientID)
	return client, nil
}

// Forget the given client if it is still current, so the next publish
// reconnects.
func (s *Sink) drop(client *paho.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == client && client != nil {
		s.client = nil
		go func() { _ = client.Disconnect(&paho.Disconnect{ReasonCode: 0}) }()
	}
}
