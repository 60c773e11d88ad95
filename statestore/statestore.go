// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package statestore persists per-exchange state records so that a session
// can be resumed or inspected after the fact. Records expire after a TTL.
package statestore

import (
	"context"
	"errors"
	"fmt"
)

type (
	// Store is a key/value store with optional per-key expiry. Expired keys
	// behave exactly as if they had never been set.
	Store interface {
		// Get returns the value of the given key, or ErrNotFound.
		Get(ctx context.Context, key string) ([]byte, error)

		// Set the value of the given key. It returns false if the key was not
		// set due to the requested condition.
		Set(ctx context.Context, key string, val []byte, opt ...SetOption) (bool, error)

		// Del deletes the given key and reports whether it was present.
		Del(ctx context.Context, key string) (bool, error)

		Close() error
	}

	// ArgumentError indicates an invalid argument.
	ArgumentError struct {
		Name  string
		Value any
	}

	// PayloadError indicates a stored value that could not be decoded.
	PayloadError string
)

var (
	ErrNotFound = errors.New("key not found")
	ErrArgument = errors.New("invalid argument")
	ErrPayload  = errors.New("malformed payload")
)

func (e ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s=%v", ErrArgument, e.Name, e.Value)
}

func (ArgumentError) Unwrap() error {
	return ErrArgument
}

func (e PayloadError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPayload, string(e))
}

func (PayloadError) Unwrap() error {
	return ErrPayload
}

func validate(key string, opts *SetOptions) error {
	if len(key) == 0 {
		return ArgumentError{Name: "key"}
	}
	if opts == nil {
		return nil
	}
	if opts.Expiry < 0 {
		return ArgumentError{Name: "Expiry", Value: opts.Expiry}
	}
	switch opts.Condition {
	case Always, NotExists:
		return nil
	default:
		return ArgumentError{Name: "Condition", Value: opts.Condition}
	}
}
