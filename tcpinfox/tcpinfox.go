// Package tcpinfox reads TCP_INFO from kernel sockets and turns successive
// readings into controller summaries.
package tcpinfox

import (
	"errors"
	"os"
	"time"

	"github.com/m-lab/tcp-info/tcp"

	"github.com/m-lab/remycc/controller"
)

// ErrNoSupport is returned on systems that do not support TCP_INFO.
var ErrNoSupport = errors.New("TCP_INFO not supported")

// GetTCPInfo reads TCP_INFO from the socket behind fp.
func GetTCPInfo(fp *os.File) (*tcp.LinuxTCPInfo, error) {
	return getTCPInfo(fp)
}

// ToSummary converts two TCP_INFO readings taken elapsed apart into the
// statistics consumed by controller.Controller.OnSummary. A nil prev is
// treated as the state of a fresh connection. The result is not usable, and
// ok is false, until the kernel has an RTT sample.
//
// Send and delivery rates are expressed as the mean gap between segments in
// microseconds, like the EWMAs they feed.
func ToSummary(prev, cur *tcp.LinuxTCPInfo, elapsed time.Duration) (controller.Summary, bool) {
	if cur == nil || cur.MinRTT == 0 {
		return controller.Summary{}, false
	}
	if prev == nil {
		prev = &tcp.LinuxTCPInfo{}
	}
	us := float64(elapsed) / float64(time.Microsecond)
	s := controller.Summary{
		SendRate:     gap(us, cur.DataSegsOut-prev.DataSegsOut),
		DeliveryRate: gap(us, cur.Delivered-prev.Delivered),
		Lost:         cur.Lost,
		MinRTT:       float64(cur.MinRTT),
		LastRTT:      float64(cur.RTT),
		InFlight:     inFlight(cur),
	}
	// The smoothed RTT can dip below the windowed minimum.
	if s.LastRTT < s.MinRTT {
		s.LastRTT = s.MinRTT
	}
	return s, true
}

func gap(us float64, segments uint32) float64 {
	if segments == 0 || us <= 0 {
		return 0
	}
	return us / float64(segments)
}

// inFlight follows the kernel's tcp_packets_in_flight.
func inFlight(info *tcp.LinuxTCPInfo) uint32 {
	out := uint64(info.Unacked) + uint64(info.Retrans)
	left := uint64(info.Sacked) + uint64(info.Lost)
	if left >= out {
		return 0
	}
	return uint32(out - left)
}
