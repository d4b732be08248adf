//go:build sonic

package json

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// std configures sonic for standard library compatible behaviour
var std = sonic.ConfigStd

var (
	// Marshal returns the JSON encoding of v
	Marshal = std.Marshal
	// Unmarshal parses JSON-encoded data into v
	Unmarshal = std.Unmarshal
	// NewDecoder returns a new decoder that reads from r
	NewDecoder = std.NewDecoder
	// NewEncoder returns a new encoder that writes to w
	NewEncoder = std.NewEncoder
	// Valid reports whether data is a valid JSON encoding
	Valid = std.Valid
)

// RawMessage is a raw encoded JSON value
type RawMessage = json.RawMessage
