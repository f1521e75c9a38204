// Package trace reads per-ACK event traces and writes per-decision flow
// statistics, both as CSV.
package trace

import (
	"compress/gzip"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/warnonerror"

	"github.com/m-lab/remycc/controller"
)

// AckEvent is one row of an input trace. Reset and Idle rows carry no ACK.
type AckEvent struct {
	Flow          string  `csv:"flow"`
	TimeMs        float64 `csv:"time_ms"`
	SegmentsAcked uint32  `csv:"segments_acked"`
	DeliveredUs   float64 `csv:"delivered_us"`
	RTTUs         float64 `csv:"rtt_us"`
	LastAckedSeq  uint64  `csv:"last_acked_seq"`
	IntQueue      float64 `csv:"int_queue"`
	IntLink       float64 `csv:"int_link"`
	Idle          bool    `csv:"idle"`
	Reset         bool    `csv:"reset"`
}

// Ack converts the event for controller.Controller.OnAck.
func (e *AckEvent) Ack() controller.Ack {
	return controller.Ack{
		SegmentsAcked: e.SegmentsAcked,
		Delivered:     time.Duration(e.DeliveredUs * float64(time.Microsecond)),
		RTT:           time.Duration(e.RTTUs * float64(time.Microsecond)),
		LastAckedSeq:  e.LastAckedSeq,
		IntQueue:      e.IntQueue,
		IntLink:       e.IntLink,
	}
}

// ReadEvents parses a CSV trace with a header row.
func ReadEvents(r io.Reader) ([]AckEvent, error) {
	var events []AckEvent
	if err := gocsv.Unmarshal(r, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// LoadEvents reads the trace at path, which may be gzip compressed.
func LoadEvents(path string) ([]AckEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer warnonerror.Close(f, "Could not close "+path)
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer warnonerror.Close(zr, "Could not close gzip reader for "+path)
		r = zr
	}
	return ReadEvents(r)
}

// GroupByFlow splits events per flow. Each flow's events are sorted by time,
// keeping trace order for ties, and flows are listed in order of first
// appearance.
func GroupByFlow(events []AckEvent) ([]string, map[string][]AckEvent) {
	var ids []string
	flows := map[string][]AckEvent{}
	for _, e := range events {
		if _, ok := flows[e.Flow]; !ok {
			ids = append(ids, e.Flow)
		}
		flows[e.Flow] = append(flows[e.Flow], e)
	}
	for _, id := range ids {
		evs := flows[id]
		sort.SliceStable(evs, func(i, j int) bool { return evs[i].TimeMs < evs[j].TimeMs })
	}
	return ids, flows
}

// RecordWriter writes controller records as CSV, with a single header row.
type RecordWriter struct {
	w      io.Writer
	header bool
}

// NewRecordWriter returns a writer on w.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: w}
}

// Write appends records to the output.
func (rw *RecordWriter) Write(records []controller.Record) error {
	if len(records) == 0 {
		return nil
	}
	if rw.header {
		return gocsv.MarshalWithoutHeaders(records, rw.w)
	}
	rw.header = true
	return gocsv.Marshal(records, rw.w)
}

// ReadRecords parses the output of RecordWriter.
func ReadRecords(r io.Reader) ([]controller.Record, error) {
	var records []controller.Record
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return nil, err
	}
	return records, nil
}
