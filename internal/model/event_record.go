package model

// EventRecord is the journal representation of an emitted event.
type EventRecord struct {
	Sequence  uint64            `json:"sequence"`
	Name      string            `json:"name"`
	Address   string            `json:"address"`
	Topics    []string          `json:"topics"`
	Data      string            `json:"data"`
	Fields    map[string]string `json:"fields"`
	Timestamp string            `json:"timestamp"`
}
