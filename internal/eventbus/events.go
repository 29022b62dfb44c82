// Package eventbus fans in-process signals (session state, pairing codes,
// log lines, cycle reports) out to the dashboard stream.
package eventbus

import "time"

const (
	TypeStatus = "status" // StatusData
	TypeQR     = "qr"     // QRData
	TypeLog    = "log"    // LogData
	TypeCycle  = "cycle"  // dispatch.CycleReport
)

type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

type StatusData struct {
	State  string `json:"state"`
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
}

// QRData is a pairing code rendered as a PNG data URL.
type QRData struct {
	DataURL string `json:"data_url"`
}

type LogData struct {
	Level string `json:"level"`
	Line  string `json:"line"`
}
