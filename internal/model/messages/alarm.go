package messages

// AlarmStatePayload is broadcast (retained) by the alarm owner on every transition.
type AlarmStatePayload struct {
	Source string `json:"source,omitempty"`
	State  string `json:"state"`
}

// PersonCountPayload carries the absolute occupant count (retained).
type PersonCountPayload struct {
	Source string `json:"source,omitempty"`
	Count  int    `json:"count"`
}

// TriggerPayload asks the alarm owner to start the alarm.
type TriggerPayload struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}
