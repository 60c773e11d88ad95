// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/alexweingart/nektus-sub006/internal/log"
	"github.com/alexweingart/nektus-sub006/internal/wallclock"
)

type (
	// RecordState is the persisted phase of an exchange.
	RecordState string

	// Record is the persisted state of one exchange, keyed by its token.
	Record struct {
		State       RecordState `json:"state"`
		Timestamp   time.Time   `json:"timestamp"`
		ProfileID   string      `json:"profileId"`
		Token       string      `json:"token"`
		UpsellShown bool        `json:"upsellShown,omitempty"`
	}

	// Records stores exchange records as JSON in an underlying Store.
	Records struct {
		store Store
		ttl   time.Duration
		clock wallclock.WallClock
		log   logger
	}
)

const (
	StateWaiting   RecordState = "waiting"
	StateCompleted RecordState = "completed"

	keyPrefix = "exchange:"
)

// NewRecords wraps a store. Records expire after DefaultTTL unless WithTTL is
// given.
func NewRecords(store Store, opt ...Option) *Records {
	opts := Options{TTL: DefaultTTL}
	opts.Apply(opt)

	return &Records{
		store: store,
		ttl:   opts.TTL,
		clock: wallclock.Or(opts.Clock),
		log:   logger{log.Wrap(opts.Logger).WithClock(wallclock.Or(opts.Clock))},
	}
}

// Save the record under its token, stamping it with the current time if it
// has none.
func (r *Records) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ArgumentError{Name: "record"}
	}
	if rec.Token == "" {
		return ArgumentError{Name: "Token"}
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.clock.Now().UTC()
	}

	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := r.store.Set(ctx, key(rec.Token), val, WithExpiry(r.ttl)); err != nil {
		return err
	}
	r.log.saved(ctx, rec, r.ttl)
	return nil
}

// Load the record for the given token, or ErrNotFound. A record that cannot
// be decoded is deleted and reported as a PayloadError.
func (r *Records) Load(ctx context.Context, token string) (*Record, error) {
	if token == "" {
		return nil, ArgumentError{Name: "token"}
	}

	val, err := r.store.Get(ctx, key(token))
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		r.log.malformed(ctx, key(token), err)
		_, _ = r.store.Del(ctx, key(token))
		return nil, PayloadError(err.Error())
	}
	return &rec, nil
}

// Clear the record for the given token, reporting whether one existed.
func (r *Records) Clear(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, ArgumentError{Name: "token"}
	}
	return r.store.Del(ctx, key(token))
}

// Exists reports whether a live record exists for the token.
func (r *Records) Exists(ctx context.Context, token string) (bool, error) {
	_, err := r.Load(ctx, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func key(token string) string {
	return keyPrefix + token
}
