package remy

// Packet is a single received-packet observation fed into a Memory. Ticks are
// in microseconds on the caller's clock.
type Packet struct {
	TickSent     float64
	TickReceived float64
	SeqNo        float64

	// QueueStat and LinkStat are the optional in-network telemetry
	// signals. They stay zero when the path does not report them.
	QueueStat float64
	LinkStat  float64
}

// NewPacket returns a Packet without telemetry.
func NewPacket(sent, received, seqno float64) Packet {
	return Packet{TickSent: sent, TickReceived: received, SeqNo: seqno}
}

// NewTelemetryPacket returns a Packet carrying queue and link telemetry.
func NewTelemetryPacket(sent, received, seqno, queue, link float64) Packet {
	return Packet{
		TickSent:     sent,
		TickReceived: received,
		SeqNo:        seqno,
		QueueStat:    queue,
		LinkStat:     link,
	}
}
