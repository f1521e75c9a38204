// Package uuidx names flows and runs.
package uuidx

import (
	"os"

	"github.com/google/uuid"
)

// FromFile returns a globally unique identifier for the socket behind file.
//
// On Linux this is github.com/m-lab/uuid, which is stable for the life of the
// socket. Elsewhere a random UUID is returned.
func FromFile(file *os.File) (string, error) {
	return fromFile(file)
}

// New returns a random identifier for a flow or run without a socket, such
// as one replayed from a trace.
func New() string {
	return uuid.NewString()
}
