package internal

import "github.com/caskdb/cask/lib/bucket"

// QueryType defines the possible read-only queries for the state machine.
type QueryType uint8

const (
	QueryTGet    QueryType = iota // Retrieve a document by key.
	QueryTExists                  // Check whether a live document exists.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTExists:
		return "Exists"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via
// SyncRead. Queries stay in-process, so no serialization is needed.
type Query struct {
	Type QueryType // The type of Query to perform.
	Key  string    // The key for the Query.
}

// QueryResult is the result of a QueryTGet operation. QueryTExists returns
// a plain bool.
type QueryResult struct {
	Doc   bucket.Document
	Found bool
}
