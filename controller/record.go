package controller

import "github.com/m-lab/remycc/remy"

// Record is one row of a flow's statistics trace, written after every
// decision taken from the table.
type Record struct {
	ID           string  `csv:"id" json:"id"`
	TimeMs       float64 `csv:"time_ms" json:"time_ms"`
	MinRTT       float64 `csv:"min_rtt" json:"min_rtt"`
	RTT          float64 `csv:"rtt" json:"rtt"`
	SendEWMA     float64 `csv:"sewma" json:"sewma"`
	RecvEWMA     float64 `csv:"rewma" json:"rewma"`
	RTTRatio     float64 `csv:"rttr" json:"rttr"`
	SlowRecvEWMA float64 `csv:"slowrewma" json:"slowrewma"`
	Cwnd         uint32  `csv:"cwnd" json:"cwnd"`
	Intersend    float64 `csv:"intersend" json:"intersend"`
}

// Record snapshots the flow at timeMs.
func (c *Controller) Record(timeMs float64) Record {
	return Record{
		ID:           c.id,
		TimeMs:       timeMs,
		MinRTT:       c.memory.MinRTT(),
		RTT:          c.lastRTT,
		SendEWMA:     c.memory.Field(remy.SendEWMA),
		RecvEWMA:     c.memory.Field(remy.RecvEWMA),
		RTTRatio:     c.memory.Field(remy.RTTRatio),
		SlowRecvEWMA: c.memory.Field(remy.SlowRecvEWMA),
		Cwnd:         c.cwnd,
		Intersend:    c.intersendTime,
	}
}
