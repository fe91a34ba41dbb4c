// Package uuid generates task identifiers.
package uuid

import "github.com/google/uuid"

// Generator produces UUID task ids.
type Generator struct{}

// NewID returns a new random UUID string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
