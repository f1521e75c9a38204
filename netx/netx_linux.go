package netx

import (
	"math"
	"os"
	"syscall"
)

const (
	// SO_MAX_PACING_RATE from asm-generic/socket.h.
	soMaxPacingRate = 47
	unlimited       = math.MaxUint32
)

func setMaxPacingRate(fp *os.File, bytesPerSecond uint64) error {
	if bytesPerSecond > unlimited {
		bytesPerSecond = unlimited
	}
	// Note: casting to int is safe because a socket is int on Unix
	return syscall.SetsockoptInt(int(fp.Fd()), syscall.SOL_SOCKET, soMaxPacingRate, int(uint32(bytesPerSecond)))
}
