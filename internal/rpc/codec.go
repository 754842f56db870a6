// Package rpc defines the splitton.v1 Connect services: message types,
// procedure names, handler constructors and typed clients. Messages are plain
// Go structs carried by a JSON codec.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Codec marshals messages with encoding/json. It is registered under the
// "json" name, so requests use the application/json content type.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return data, nil
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
