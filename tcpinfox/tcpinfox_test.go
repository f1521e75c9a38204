package tcpinfox

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/m-lab/tcp-info/tcp"

	"github.com/m-lab/remycc/controller"
)

func TestToSummary(t *testing.T) {
	tests := []struct {
		name    string
		prev    *tcp.LinuxTCPInfo
		cur     *tcp.LinuxTCPInfo
		elapsed time.Duration
		want    controller.Summary
		wantOK  bool
	}{
		{
			name:   "no-rtt-sample",
			cur:    &tcp.LinuxTCPInfo{DataSegsOut: 10},
			wantOK: false,
		},
		{
			name:    "first-reading",
			cur:     &tcp.LinuxTCPInfo{DataSegsOut: 10, Delivered: 5, MinRTT: 2000, RTT: 3000, Unacked: 5},
			elapsed: 10 * time.Millisecond,
			want: controller.Summary{
				SendRate:     1000,
				DeliveryRate: 2000,
				MinRTT:       2000,
				LastRTT:      3000,
				InFlight:     5,
			},
			wantOK: true,
		},
		{
			name:    "successive-readings",
			prev:    &tcp.LinuxTCPInfo{DataSegsOut: 10, Delivered: 5, MinRTT: 2000},
			cur:     &tcp.LinuxTCPInfo{DataSegsOut: 50, Delivered: 25, MinRTT: 2000, RTT: 2500, Unacked: 30, Sacked: 4, Lost: 2, Retrans: 1},
			elapsed: 20 * time.Millisecond,
			want: controller.Summary{
				SendRate:     500,
				DeliveryRate: 1000,
				Lost:         2,
				MinRTT:       2000,
				LastRTT:      2500,
				InFlight:     25,
			},
			wantOK: true,
		},
		{
			name:    "smoothed-rtt-below-min",
			prev:    &tcp.LinuxTCPInfo{DataSegsOut: 10, Delivered: 10},
			cur:     &tcp.LinuxTCPInfo{DataSegsOut: 10, Delivered: 10, MinRTT: 2000, RTT: 1500, Sacked: 3, Lost: 1},
			elapsed: time.Millisecond,
			want: controller.Summary{
				Lost:    1,
				MinRTT:  2000,
				LastRTT: 2000,
			},
			wantOK: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToSummary(tt.prev, tt.cur, tt.elapsed)
			if ok != tt.wantOK {
				t.Fatalf("ToSummary() ok = %v, want %v", ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ToSummary() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// The summary feeds the controller without violating its invariants.
func TestToSummary_DrivesController(t *testing.T) {
	s, ok := ToSummary(nil, &tcp.LinuxTCPInfo{MinRTT: 100, RTT: 90, DataSegsOut: 1, Delivered: 1}, time.Millisecond)
	if !ok {
		t.Fatal("ToSummary() ok = false")
	}
	if s.LastRTT/s.MinRTT < 1 || s.LastRTT-s.MinRTT < 0 {
		t.Errorf("ToSummary() = %+v breaks the rtt ordering", s)
	}
}
