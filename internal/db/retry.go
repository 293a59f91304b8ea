package db

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Operation is a single store action that may fail transiently.
type Operation func() error

// DefaultMaxRetries bounds how often Try re-runs an operation that keeps
// losing a unique-index race.
const DefaultMaxRetries = 3

// Try runs op and retries it on duplicate-key errors. Upserts against a
// unique index (the per-agent contact email, the processed-email ledger) can
// race with a concurrent writer; on the retry the upsert finds the winner's
// document and succeeds.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsMongoDuplicateKeyError)
}

// WithRetries runs op up to 1+maxRetries times, retrying only when retryable
// reports the error as transient. Retries back off linearly.
func WithRetries(op Operation, maxRetries int, retryable func(error) bool) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == maxRetries || !retryable(err) {
			return err
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
}

// IsMongoDuplicateKeyError reports whether err is a unique-index violation
// (MongoDB error code 11000), in either a plain or a bulk write.
func IsMongoDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
