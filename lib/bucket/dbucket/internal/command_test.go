package internal

import (
	"bytes"
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with key and value",
			command: Command{
				Type:  CommandTUpsert,
				Key:   "testkey",
				Value: []byte("testvalue"),
			},
			expected: commandHeaderSize + 7 + 9,
		},
		{
			name: "Command with empty key and value",
			command: Command{
				Type:  CommandTUpsert,
				Key:   "",
				Value: []byte("testvalue"),
			},
			expected: commandHeaderSize + 0 + 9,
		},
		{
			name: "Command without value",
			command: Command{
				Type: CommandTRemove,
				Key:  "testkey",
			},
			expected: commandHeaderSize + 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
			if got := len(tt.command.Serialize()); got != tt.expected {
				t.Errorf("len(Serialize()) = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Upsert with value and expiry",
			command: Command{
				Type:      CommandTUpsert,
				Timestamp: 1735689600000000000,
				Expiry:    int64(30_000_000_000),
				Key:       "testkey",
				Value:     []byte("testvalue"),
			},
		},
		{
			name: "CAS-qualified remove without value",
			command: Command{
				Type:      CommandTRemove,
				Timestamp: 1735689600000000000,
				Cas:       0xdeadbeef,
				Key:       "testkey",
			},
		},
		{
			name: "Counter with negative delta",
			command: Command{
				Type:      CommandTCounterInit,
				Timestamp: 42,
				Delta:     -10,
				Initial:   100,
				Key:       "counter",
			},
		},
		{
			name: "Lock acquisition",
			command: Command{
				Type:      CommandTGetAndLock,
				Timestamp: 1,
				LockFor:   int64(15_000_000_000),
				Key:       "locked-doc",
			},
		},
		{
			name: "Command with empty key",
			command: Command{
				Type:  CommandTUpsert,
				Key:   "",
				Value: []byte("v"),
			},
		},
		{
			name: "Command with empty value",
			command: Command{
				Type:  CommandTAppend,
				Key:   "k",
				Value: []byte{},
			},
		},
		{
			name: "Command with binary value",
			command: Command{
				Type:  CommandTUpsert,
				Key:   "bin",
				Value: []byte{0x00, 0xff, 0x42, 0x00},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var decoded Command
			if err := decoded.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if decoded.Type != tt.command.Type {
				t.Errorf("Type = %v, want %v", decoded.Type, tt.command.Type)
			}
			if decoded.Timestamp != tt.command.Timestamp {
				t.Errorf("Timestamp = %v, want %v", decoded.Timestamp, tt.command.Timestamp)
			}
			if decoded.Cas != tt.command.Cas {
				t.Errorf("Cas = %v, want %v", decoded.Cas, tt.command.Cas)
			}
			if decoded.Expiry != tt.command.Expiry {
				t.Errorf("Expiry = %v, want %v", decoded.Expiry, tt.command.Expiry)
			}
			if decoded.LockFor != tt.command.LockFor {
				t.Errorf("LockFor = %v, want %v", decoded.LockFor, tt.command.LockFor)
			}
			if decoded.Delta != tt.command.Delta {
				t.Errorf("Delta = %v, want %v", decoded.Delta, tt.command.Delta)
			}
			if decoded.Initial != tt.command.Initial {
				t.Errorf("Initial = %v, want %v", decoded.Initial, tt.command.Initial)
			}
			if decoded.Key != tt.command.Key {
				t.Errorf("Key = %q, want %q", decoded.Key, tt.command.Key)
			}

			// an empty value and no value serialize identically
			wantValue := tt.command.Value
			if len(wantValue) == 0 {
				wantValue = nil
			}
			if !bytes.Equal(decoded.Value, wantValue) {
				t.Errorf("Value = %v, want %v", decoded.Value, wantValue)
			}
		})
	}
}

// TestDeserializeErrors tests error handling for malformed data
func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "Empty data",
			data: []byte{},
		},
		{
			name: "Truncated header",
			data: make([]byte, commandHeaderSize-1),
		},
		{
			name: "Key length beyond data",
			data: func() []byte {
				cmd := Command{Type: CommandTUpsert, Key: "testkey"}
				data := cmd.Serialize()
				return data[:len(data)-3] // cut into the key bytes
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			if err := cmd.Deserialize(tt.data); err == nil {
				t.Errorf("Deserialize() expected error for %d bytes", len(tt.data))
			}
		})
	}
}

// TestBufferReuse verifies that Deserialize reuses an existing value buffer
func TestBufferReuse(t *testing.T) {
	first := Command{Type: CommandTUpsert, Key: "k", Value: []byte("long-first-value")}
	second := Command{Type: CommandTUpsert, Key: "k", Value: []byte("short")}

	var decoded Command
	if err := decoded.Deserialize(first.Serialize()); err != nil {
		t.Fatal(err)
	}
	buf := decoded.Value

	if err := decoded.Deserialize(second.Serialize()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded.Value, []byte("short")) {
		t.Errorf("Value = %q, want %q", decoded.Value, "short")
	}
	if cap(buf) >= len("short") && len(decoded.Value) > 0 && &decoded.Value[0] != &buf[0] {
		t.Errorf("expected the value buffer to be reused")
	}
}

// TestResultSerializeDeserialize tests the result payload round trip
func TestResultSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name   string
		result Result
	}{
		{
			name:   "Metadata-only result",
			result: Result{Cas: 42},
		},
		{
			name:   "Counter result",
			result: Result{Cas: 7, Aux: 1000},
		},
		{
			name:   "Result with document content",
			result: Result{Cas: 9, Aux: 5, HasValue: true, Value: []byte("payload")},
		},
		{
			name:   "Result with empty document content",
			result: Result{Cas: 9, HasValue: true, Value: []byte{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.result.Serialize()

			var decoded Result
			if err := decoded.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if decoded.Cas != tt.result.Cas || decoded.Aux != tt.result.Aux || decoded.HasValue != tt.result.HasValue {
				t.Errorf("decoded = %+v, want %+v", decoded, tt.result)
			}
			if !bytes.Equal(decoded.Value, tt.result.Value) {
				t.Errorf("Value = %v, want %v", decoded.Value, tt.result.Value)
			}
		})
	}

	var r Result
	if err := r.Deserialize([]byte{1, 2}); err == nil {
		t.Errorf("expected error for truncated result")
	}
}
