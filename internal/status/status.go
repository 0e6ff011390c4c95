// Package status derives the user's availability from a window of calendar
// events.
package status

import "fmt"

// Status is the availability reported to the display and the remote beacon.
// Values are nominal; combination goes through the precedence table, never
// through the wire codes.
type Status string

const (
	Off       Status = "off"
	Busy      Status = "busy"
	Tentative Status = "tentative"
	Free      Status = "free"
)

// precedence orders statuses for Combine. Lower wins: once a tick reaches
// Busy, a Tentative event cannot lift it back, and an Off baseline stays Off.
var precedence = map[Status]int{
	Off:       0,
	Busy:      1,
	Tentative: 2,
	Free:      3,
}

// wireCodes are the values understood by the Remote Notify firmware.
var wireCodes = map[Status]int{
	Off:       0,
	Busy:      1,
	Tentative: 2,
	Free:      3,
}

// All lists every status in a stable order.
func All() []Status {
	return []Status{Off, Busy, Tentative, Free}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := precedence[s]
	return ok
}

// Code returns the Remote Notify wire code for s.
func (s Status) Code() int {
	code, ok := wireCodes[s]
	if !ok {
		panic(fmt.Sprintf("status: unknown status %q", string(s)))
	}
	return code
}

func (s Status) String() string { return string(s) }

// Combine returns whichever of a and b dominates for the current tick.
func Combine(a, b Status) Status {
	if precedence[b] < precedence[a] {
		return b
	}
	return a
}
