package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/caskdb/cask/lib/bucket"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key     string `json:"key,omitempty"`     // Document key, used by every keyed operation
	Value   []byte `json:"value,omitempty"`   // Payload (requests), stored value (responses)
	Cas     uint64 `json:"cas,omitempty"`     // CAS token (requests), fresh CAS token (responses)
	Expiry  int64  `json:"expiry,omitempty"`  // TTL in nanoseconds (requests), remaining TTL (responses)
	LockFor int64  `json:"lockFor,omitempty"` // Lock duration in nanoseconds, GetAndLock only
	Delta   int64  `json:"delta,omitempty"`   // Counter delta
	Num     uint64 `json:"num,omitempty"`     // Counter initial value (requests), counter value (responses)

	// Durability requirement fields
	PersistTo   int `json:"persistTo,omitempty"`   // Number of nodes the mutation must be persisted on
	ReplicateTo int `json:"replicateTo,omitempty"` // Number of replicas the mutation must be replicated to

	// Response only fields
	Ok      bool   `json:"ok,omitempty"`      // Used for: Get, Exists, Touch, Unlock responses
	Err     string `json:"err,omitempty"`     // Empty if no error, otherwise contains the error message
	ErrKind uint8  `json:"errKind,omitempty"` // bucket.ErrorKind of the failure, only meaningful if Err is set

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Unused, can be used for additional Adapters
}

// setErr records an error on a response message. For bucket errors the
// kind is carried separately so the remote side can rebuild the typed
// error, and Err holds only the bare message to avoid double prefixing.
func (m *Message) setErr(err error) {
	if err == nil {
		return
	}
	var be *bucket.Error
	if errors.As(err, &be) {
		m.Err = be.Msg
		m.ErrKind = uint8(be.Kind)
		return
	}
	m.Err = err.Error()
	m.ErrKind = uint8(bucket.KindInternal)
}

// RemoteError reconstructs the typed error carried by a response message,
// or nil if the message reports success. The result is always a
// *bucket.Error so client-side callers can dispatch on the error kind
// exactly like local callers.
func (m *Message) RemoteError() error {
	if m.Err == "" {
		return nil
	}
	return bucket.NewError(bucket.ErrorKind(m.ErrKind), m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// newDocResponse builds a response carrying document metadata. Value may be
// nil for metadata-only results (remove, append, prepend).
func newDocResponse(t MessageType, doc bucket.Document, err error) *Message {
	msg := &Message{
		MsgType: t,
		Value:   doc.Value,
		Cas:     doc.Cas,
		Expiry:  int64(doc.Expiry),
	}
	msg.setErr(err)
	return msg
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(doc bucket.Document, found bool, err error) *Message {
	msg := newDocResponse(MsgTGet, doc, err)
	msg.Ok = found
	return msg
}

// NewExistsRequest creates a new Exists request
func NewExistsRequest(key string) *Message {
	return &Message{
		MsgType: MsgTExists,
		Key:     key,
	}
}

// NewExistsResponse creates a new Exists response
func NewExistsResponse(found bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTExists,
		Ok:      found,
	}
	msg.setErr(err)
	return msg
}

// NewInsertRequest creates a new Insert request
func NewInsertRequest(key string, value []byte, expiry time.Duration) *Message {
	return &Message{
		MsgType: MsgTInsert,
		Key:     key,
		Value:   value,
		Expiry:  int64(expiry),
	}
}

// NewInsertResponse creates a new Insert response
func NewInsertResponse(doc bucket.Document, err error) *Message {
	return newDocResponse(MsgTInsert, doc, err)
}

// NewUpsertRequest creates a new Upsert request
func NewUpsertRequest(key string, value []byte, expiry time.Duration) *Message {
	return &Message{
		MsgType: MsgTUpsert,
		Key:     key,
		Value:   value,
		Expiry:  int64(expiry),
	}
}

// NewUpsertResponse creates a new Upsert response
func NewUpsertResponse(doc bucket.Document, err error) *Message {
	return newDocResponse(MsgTUpsert, doc, err)
}

// NewReplaceRequest creates a new Replace request
func NewReplaceRequest(key string, value []byte, expiry time.Duration, cas uint64) *Message {
	return &Message{
		MsgType: MsgTReplace,
		Key:     key,
		Value:   value,
		Expiry:  int64(expiry),
		Cas:     cas,
	}
}

// NewReplaceResponse creates a new Replace response
func NewReplaceResponse(doc bucket.Document, err error) *Message {
	return newDocResponse(MsgTReplace, doc, err)
}

// NewRemoveRequest creates a new Remove request
func NewRemoveRequest(key string, cas uint64) *Message {
	return &Message{
		MsgType: MsgTRemove,
		Key:     key,
		Cas:     cas,
	}
}

// NewRemoveResponse creates a new Remove response
func NewRemoveResponse(doc bucket.Document, err error) *Message {
	return newDocResponse(MsgTRemove, doc, err)
}

// NewCounterRequest creates a new Counter request
func NewCounterRequest(key string, delta int64) *Message {
	return &Message{
		MsgType: MsgTCounter,
		Key:     key,
		Delta:   delta,
	}
}

// NewCounterResponse creates a new Counter response
func NewCounterResponse(res bucket.CounterResult, err error) *Message {
	msg := &Message{
		MsgType: MsgTCounter,
		Cas:     res.Cas,
		Num:     res.Value,
	}
	msg.setErr(err)
	return msg
}

// NewCounterInitRequest creates a new CounterInit request
func NewCounterInitRequest(key string, delta int64, initial uint64, expiry time.Duration) *Message {
	return &Message{
		MsgType: MsgTCounterInit,
		Key:     key,
		Delta:   delta,
		Num:     initial,
		Expiry:  int64(expiry),
	}
}

// NewCounterInitResponse creates a new CounterInit response
func NewCounterInitResponse(res bucket.CounterResult, err error) *Message {
	msg := &Message{
		MsgType: MsgTCounterInit,
		Cas:     res.Cas,
		Num:     res.Value,
	}
	msg.setErr(err)
	return msg
}

// NewAppendRequest creates a new Append request
func NewAppendRequest(key string, payload []byte, cas uint64) *Message {
	return &Message{
		MsgType: MsgTAppend,
		Key:     key,
		Value:   payload,
		Cas:     cas,
	}
}

// NewAppendResponse creates a new Append response
func NewAppendResponse(doc bucket.Document, err error) *Message {
	return newDocResponse(MsgTAppend, doc, err)
}

// NewPrependRequest creates a new Prepend request
func NewPrependRequest(key string, payload []byte, cas uint64) *Message {
	return &Message{
		MsgType: MsgTPrepend,
		Key:     key,
		Value:   payload,
		Cas:     cas,
	}
}

// NewPrependResponse creates a new Prepend response
func NewPrependResponse(doc bucket.Document, err error) *Message {
	return newDocResponse(MsgTPrepend, doc, err)
}

// NewTouchRequest creates a new Touch request
func NewTouchRequest(key string, expiry time.Duration) *Message {
	return &Message{
		MsgType: MsgTTouch,
		Key:     key,
		Expiry:  int64(expiry),
	}
}

// NewTouchResponse creates a new Touch response
func NewTouchResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTTouch,
		Ok:      ok,
	}
	msg.setErr(err)
	return msg
}

// NewGetAndTouchRequest creates a new GetAndTouch request
func NewGetAndTouchRequest(key string, expiry time.Duration) *Message {
	return &Message{
		MsgType: MsgTGetAndTouch,
		Key:     key,
		Expiry:  int64(expiry),
	}
}

// NewGetAndTouchResponse creates a new GetAndTouch response
func NewGetAndTouchResponse(doc bucket.Document, err error) *Message {
	return newDocResponse(MsgTGetAndTouch, doc, err)
}

// NewGetAndLockRequest creates a new GetAndLock request
func NewGetAndLockRequest(key string, lockFor time.Duration) *Message {
	return &Message{
		MsgType: MsgTGetAndLock,
		Key:     key,
		LockFor: int64(lockFor),
	}
}

// NewGetAndLockResponse creates a new GetAndLock response
func NewGetAndLockResponse(doc bucket.Document, err error) *Message {
	return newDocResponse(MsgTGetAndLock, doc, err)
}

// NewUnlockRequest creates a new Unlock request
func NewUnlockRequest(key string, cas uint64) *Message {
	return &Message{
		MsgType: MsgTUnlock,
		Key:     key,
		Cas:     cas,
	}
}

// NewUnlockResponse creates a new Unlock response
func NewUnlockResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTUnlock,
		Ok:      ok,
	}
	msg.setErr(err)
	return msg
}

// NewDurabilityRequest creates a new Durability request
func NewDurabilityRequest(key string, cas uint64, persistTo, replicateTo int) *Message {
	return &Message{
		MsgType:     MsgTDurability,
		Key:         key,
		Cas:         cas,
		PersistTo:   persistTo,
		ReplicateTo: replicateTo,
	}
}

// NewDurabilityResponse creates a new Durability response
func NewDurabilityResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTDurability,
	}
	msg.setErr(err)
	return msg
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
}

// NewCustomResponse creates a new Custom response
func NewCustomResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
	msg.setErr(err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTGet:
		return "get"
	case MsgTExists:
		return "exists"
	case MsgTInsert:
		return "insert"
	case MsgTUpsert:
		return "upsert"
	case MsgTReplace:
		return "replace"
	case MsgTRemove:
		return "remove"
	case MsgTCounter:
		return "counter"
	case MsgTCounterInit:
		return "counterInit"
	case MsgTAppend:
		return "append"
	case MsgTPrepend:
		return "prepend"
	case MsgTTouch:
		return "touch"
	case MsgTGetAndTouch:
		return "getAndTouch"
	case MsgTGetAndLock:
		return "getAndLock"
	case MsgTUnlock:
		return "unlock"
	case MsgTDurability:
		return "durability"
	case MsgTCustom:
		return "custom"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "get":
		*t = MsgTGet
	case "exists":
		*t = MsgTExists
	case "insert":
		*t = MsgTInsert
	case "upsert":
		*t = MsgTUpsert
	case "replace":
		*t = MsgTReplace
	case "remove":
		*t = MsgTRemove
	case "counter":
		*t = MsgTCounter
	case "counterInit":
		*t = MsgTCounterInit
	case "append":
		*t = MsgTAppend
	case "prepend":
		*t = MsgTPrepend
	case "touch":
		*t = MsgTTouch
	case "getAndTouch":
		*t = MsgTGetAndTouch
	case "getAndLock":
		*t = MsgTGetAndLock
	case "unlock":
		*t = MsgTUnlock
	case "durability":
		*t = MsgTDurability
	case "custom":
		*t = MsgTCustom
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Read operations

	MsgTGet    // Get a document by key
	MsgTExists // Check if a document exists

	// Write operations

	MsgTInsert  // Create a document, fails if the key is present
	MsgTUpsert  // Create or overwrite a document
	MsgTReplace // Overwrite an existing document, optionally CAS-qualified
	MsgTRemove  // Delete a document, optionally CAS-qualified

	// Counter operations

	MsgTCounter     // Add a delta to an existing counter
	MsgTCounterInit // Add a delta, creating the counter if absent

	// Binary concatenation operations

	MsgTAppend  // Append a payload to a stored value
	MsgTPrepend // Prepend a payload to a stored value

	// Expiry operations

	MsgTTouch       // Reset the expiry of a document
	MsgTGetAndTouch // Get a document and reset its expiry

	// Locking operations

	MsgTGetAndLock // Get a document and lock it
	MsgTUnlock     // Release a lock

	// Durability operations

	MsgTDurability // Await a durability requirement for a committed mutation

	// Custom operations

	MsgTCustom // Custom operation type
)
