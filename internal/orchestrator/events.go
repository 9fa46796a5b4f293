package orchestrator

import "encoding/json"

// Event names of the streaming protocol.
const (
	EventStart = "start"
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

type Event struct {
	Name string
	Data any
}

type StartEvent struct {
	FragmentCount int  `json:"fragmentCount"`
	Cached        bool `json:"cached"`
}

type ChunkEvent struct {
	Index           int    `json:"index"`
	Text            string `json:"text"`
	ProgressPercent int    `json:"progressPercent"`
}

type DoneEvent struct {
	Success  bool            `json:"success"`
	Document json.RawMessage `json:"document,omitempty"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

// Emitter delivers one event to the client. An error stops the pipeline.
type Emitter func(Event) error
