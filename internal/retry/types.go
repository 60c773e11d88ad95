// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"time"
)

type (
	// Task represents a function to retry. It should return a boolean
	// indicating whether a retry should occur on the given error.
	Task = func(context.Context) (shouldRetry bool, err error)

	// Policy is the retry policy for task execution.
	Policy interface {
		Start(ctx context.Context, name string, task Task) error
	}

	// Classifier reports whether a failure may succeed if attempted again.
	Classifier = func(error) bool

	// Delayer is implemented by errors that carry the remote side's requested
	// wait before the next attempt, such as an HTTP Retry-After.
	Delayer interface {
		RetryAfter() time.Duration
	}
)

// Classify builds a Task from an operation that only reports an error,
// deciding with classify which failures are retried.
func Classify(classify Classifier, op func(context.Context) error) Task {
	return func(ctx context.Context) (bool, error) {
		err := op(ctx)
		if err == nil {
			return false, nil
		}
		return classify(err), err
	}
}
