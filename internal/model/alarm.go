package model

// AlarmState is the label published by the alarm owner. The router only
// forwards it; transitions are decided elsewhere.
type AlarmState string

const (
	AlarmDisarmed AlarmState = "DISARMED"
	AlarmArming   AlarmState = "ARMING"
	AlarmArmed    AlarmState = "ARMED"
	AlarmGrace    AlarmState = "GRACE"
	AlarmAlarming AlarmState = "ALARMING"
)

// Known reports whether s is one of the labels the alarm owner publishes.
func (s AlarmState) Known() bool {
	switch s {
	case AlarmDisarmed, AlarmArming, AlarmArmed, AlarmGrace, AlarmAlarming:
		return true
	}
	return false
}

// PersonCount is the occupant count. Known is false when the payload could
// not be read as a number; observers decide what that means.
type PersonCount struct {
	Value int  `json:"value"`
	Known bool `json:"known"`
}

// UnknownPersonCount is the sentinel for an unparsable count.
var UnknownPersonCount = PersonCount{}

// Count wraps a parsed count.
func Count(n int) PersonCount { return PersonCount{Value: n, Known: true} }

// AlarmTrigger is a request from a slave node asking the alarm owner to
// start the alarm.
type AlarmTrigger struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}
