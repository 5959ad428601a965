// Package idgen generates short, URL-safe request ids backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// RequestPrefix marks ids attached to inbound requests and their log lines.
const RequestPrefix = "req-"

// Alphabet is the character set of the random part.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters, excluding the prefix.
const Length = 10

// GenerateWithPrefix returns prefix followed by Length random characters.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// RequestID returns a new request id. Entropy failures, which nanoid only
// reports when the system random source is broken, yield a fixed id so that
// request handling can continue.
func RequestID() string {
	id, err := GenerateWithPrefix(RequestPrefix)
	if err != nil {
		return RequestPrefix + "unknown"
	}
	return id
}
