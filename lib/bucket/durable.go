package bucket

import (
	"context"
	"time"
)

// --------------------------------------------------------------------------
// Durable Write Helpers
// --------------------------------------------------------------------------

// The helpers below compose a local mutation with a post-commit durability
// wait. On a durability failure the returned Document still carries the
// committed CAS: the write happened, only the acknowledgment is missing.

// InsertDurably inserts a document and waits for the requested durability.
func InsertDurably(ctx context.Context, b IBucket, key string, value []byte, expiry time.Duration, persistTo, replicateTo int) (Document, error) {
	doc, err := b.Insert(key, value, expiry)
	if err != nil {
		return doc, err
	}
	return doc, b.AwaitDurability(ctx, key, doc.Cas, persistTo, replicateTo)
}

// UpsertDurably upserts a document and waits for the requested durability.
func UpsertDurably(ctx context.Context, b IBucket, key string, value []byte, expiry time.Duration, persistTo, replicateTo int) (Document, error) {
	doc, err := b.Upsert(key, value, expiry)
	if err != nil {
		return doc, err
	}
	return doc, b.AwaitDurability(ctx, key, doc.Cas, persistTo, replicateTo)
}

// ReplaceDurably replaces a document and waits for the requested durability.
func ReplaceDurably(ctx context.Context, b IBucket, key string, value []byte, expiry time.Duration, cas uint64, persistTo, replicateTo int) (Document, error) {
	doc, err := b.Replace(key, value, expiry, cas)
	if err != nil {
		return doc, err
	}
	return doc, b.AwaitDurability(ctx, key, doc.Cas, persistTo, replicateTo)
}

// RemoveDurably removes a document and waits until the removal reached the
// requested durability. The tombstone CAS identifies the removal.
func RemoveDurably(ctx context.Context, b IBucket, key string, cas uint64, persistTo, replicateTo int) (Document, error) {
	doc, err := b.Remove(key, cas)
	if err != nil {
		return doc, err
	}
	return doc, b.AwaitDurability(ctx, key, doc.Cas, persistTo, replicateTo)
}
