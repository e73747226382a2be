package messages

// Command is published on the command topic. Nodes act on it only when
// Target matches their own id.
type Command struct {
	Target  string                 `json:"target"`
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params"`
}
