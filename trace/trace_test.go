package trace

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/go/testingx"

	"github.com/m-lab/remycc/controller"
)

func TestLoadEvents(t *testing.T) {
	events, err := LoadEvents("testdata/acks.csv")
	testingx.Must(t, err, "LoadEvents")
	if len(events) != 7 {
		t.Fatalf("LoadEvents() returned %d events, want 7", len(events))
	}
	want := AckEvent{Flow: "b", TimeMs: 4, SegmentsAcked: 1, DeliveredUs: 4000, RTTUs: 600, LastAckedSeq: 2000, IntQueue: 2, IntLink: 40}
	if diff := cmp.Diff(want, events[3]); diff != "" {
		t.Errorf("events[3] mismatch (-want +got):\n%s", diff)
	}
	if !events[5].Idle || !events[6].Reset {
		t.Errorf("idle and reset flags not parsed: %+v %+v", events[5], events[6])
	}

	raw, err := os.ReadFile("testdata/acks.csv")
	rtx.Must(err, "read")
	gz := filepath.Join(t.TempDir(), "acks.csv.gz")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(raw)
	rtx.Must(err, "gzip")
	rtx.Must(zw.Close(), "gzip close")
	rtx.Must(os.WriteFile(gz, buf.Bytes(), 0644), "write")
	zevents, err := LoadEvents(gz)
	testingx.Must(t, err, "LoadEvents(gz)")
	if diff := cmp.Diff(events, zevents); diff != "" {
		t.Errorf("gzip trace mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadEvents("testdata/missing.csv"); err == nil {
		t.Error("LoadEvents() of a missing file succeeded")
	}
}

func TestGroupByFlow(t *testing.T) {
	events, err := LoadEvents("testdata/acks.csv")
	testingx.Must(t, err, "LoadEvents")
	ids, flows := GroupByFlow(events)
	if diff := cmp.Diff([]string{"b", "a"}, ids); diff != "" {
		t.Errorf("GroupByFlow() ids mismatch (-want +got):\n%s", diff)
	}
	var delivered []float64
	for _, e := range flows["a"] {
		delivered = append(delivered, e.DeliveredUs)
	}
	// The two events at 3ms keep their trace order.
	if diff := cmp.Diff([]float64{2000, 3000, 3500, 0, 0}, delivered); diff != "" {
		t.Errorf("flow a order mismatch (-want +got):\n%s", diff)
	}
}

func TestAckEvent_Ack(t *testing.T) {
	e := AckEvent{SegmentsAcked: 2, DeliveredUs: 1500, RTTUs: 250.5, LastAckedSeq: 9, IntQueue: 1, IntLink: 2}
	want := controller.Ack{
		SegmentsAcked: 2,
		Delivered:     1500 * time.Microsecond,
		RTT:           250500 * time.Nanosecond,
		LastAckedSeq:  9,
		IntQueue:      1,
		IntLink:       2,
	}
	if diff := cmp.Diff(want, e.Ack()); diff != "" {
		t.Errorf("Ack() mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRecordWriter(&buf)
	first := []controller.Record{{ID: "a", TimeMs: 1, MinRTT: 500, RTT: 500, Cwnd: 2}}
	second := []controller.Record{
		{ID: "a", TimeMs: 2, MinRTT: 500, RTT: 600, RecvEWMA: 125, RTTRatio: 1.2, Cwnd: 3, Intersend: 250},
		{ID: "b", TimeMs: 2.5, MinRTT: 400, RTT: 400, Cwnd: 1},
	}
	testingx.Must(t, w.Write(first), "Write")
	testingx.Must(t, w.Write(nil), "Write(nil)")
	testingx.Must(t, w.Write(second), "Write")

	out := buf.String()
	if !strings.HasPrefix(out, "id,time_ms,min_rtt,rtt,sewma,rewma,rttr,slowrewma,cwnd,intersend\n") {
		t.Errorf("unexpected header in:\n%s", out)
	}
	if n := strings.Count(out, "id,time_ms"); n != 1 {
		t.Errorf("header written %d times", n)
	}
	got, err := ReadRecords(strings.NewReader(out))
	testingx.Must(t, err, "ReadRecords")
	if diff := cmp.Diff(append(first, second...), got); diff != "" {
		t.Errorf("ReadRecords() mismatch (-want +got):\n%s", diff)
	}
}
