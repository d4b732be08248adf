//go:build !sonic

// Package json wraps the module's JSON implementation so callers are agnostic
// to the encoder in use. The default build uses the standard library; build
// with the sonic tag for the accelerated encoder.
package json

import "encoding/json"

var (
	// Marshal returns the JSON encoding of v
	Marshal = json.Marshal
	// Unmarshal parses JSON-encoded data into v
	Unmarshal = json.Unmarshal
	// NewDecoder returns a new decoder that reads from r
	NewDecoder = json.NewDecoder
	// NewEncoder returns a new encoder that writes to w
	NewEncoder = json.NewEncoder
	// Valid reports whether data is a valid JSON encoding
	Valid = json.Valid
)

type (
	// RawMessage is a raw encoded JSON value
	RawMessage = json.RawMessage
	// Decoder reads and decodes JSON values from an input stream
	Decoder = json.Decoder
	// Encoder writes JSON values to an output stream
	Encoder = json.Encoder
)
