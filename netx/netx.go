// Package netx connects a controller to a kernel TCP socket: it reads the
// socket's TCP_INFO and applies pacing decisions to it.
package netx

import (
	"net"
	"os"

	"github.com/m-lab/tcp-info/tcp"

	"github.com/m-lab/remycc/controller"
	"github.com/m-lab/remycc/tcpinfox"
	"github.com/m-lab/remycc/uuidx"
)

// Socket is a kernel TCP socket observed and paced by a controller.
type Socket struct {
	file *os.File
	id   string
}

// FromTCPConn returns a Socket for tc. The Socket holds a dup of tc's
// descriptor, so both must be closed.
func FromTCPConn(tc *net.TCPConn) (*Socket, error) {
	// File puts the dup in blocking mode; it is only used for getsockopt
	// and setsockopt, never for I/O.
	fp, err := tc.File()
	if err != nil {
		return nil, err
	}
	id, err := uuidx.FromFile(fp)
	if err != nil {
		fp.Close()
		return nil, err
	}
	return &Socket{file: fp, id: id}, nil
}

// ID returns the socket's globally unique identifier.
func (s *Socket) ID() string {
	return s.id
}

// GetTCPInfo reads the socket's current TCP_INFO.
func (s *Socket) GetTCPInfo() (*tcp.LinuxTCPInfo, error) {
	return tcpinfox.GetTCPInfo(s.file)
}

// Apply sets the socket's maximum pacing rate from d. A decision without
// pacing lifts the limit. The kernel owns the congestion window, so d.Cwnd is
// not applied.
func (s *Socket) Apply(d controller.Decision) error {
	var rate uint64 = unlimited
	if d.Pacing {
		rate = uint64(d.PacingRate / 8)
	}
	return setMaxPacingRate(s.file, rate)
}

// Close releases the descriptor dup.
func (s *Socket) Close() error {
	return s.file.Close()
}
