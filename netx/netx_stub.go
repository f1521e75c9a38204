//go:build !linux
// +build !linux

package netx

import (
	"errors"
	"math"
	"os"
)

const unlimited = math.MaxUint32

// ErrNoPacing is returned on platforms without SO_MAX_PACING_RATE.
var ErrNoPacing = errors.New("netx: socket pacing not available on this platform")

func setMaxPacingRate(*os.File, uint64) error {
	return ErrNoPacing
}
