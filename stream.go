package mobpilot

// StreamMode labels the channel a GraphEvent belongs to.
type StreamMode string

const (
	// StreamValues carries the full committed state snapshot after each
	// node execution.
	StreamValues StreamMode = "values"
	// StreamUpdates carries the per-node delta that was just committed.
	StreamUpdates StreamMode = "updates"
	// StreamMessages carries incremental LLM text chunks, when the active
	// provider streams them.
	StreamMessages StreamMode = "messages"
	// StreamCustom carries agent progress notices (thoughts, slow-call
	// warnings) for user-facing display.
	StreamCustom StreamMode = "custom"
)

// GraphEvent is one observation emitted while a graph run progresses.
// Exactly one payload field is populated, selected by Mode.
type GraphEvent struct {
	Mode StreamMode
	// Node names the producing node; empty for run-level events.
	Node string

	// Snapshot is set for StreamValues.
	Snapshot *State
	// Delta is set for StreamUpdates.
	Delta *StateDelta
	// Text is set for StreamMessages and StreamCustom.
	Text string
}

// EventSink receives graph events in commit order. Sinks must be fast; a
// slow sink delays the run. A nil sink discards everything.
type EventSink func(GraphEvent)

// emitTo is a nil-safe sink call.
func emitTo(sink EventSink, ev GraphEvent) {
	if sink != nil {
		sink(ev)
	}
}

// fanOut combines sinks into one.
func fanOut(sinks ...EventSink) EventSink {
	return func(ev GraphEvent) {
		for _, s := range sinks {
			emitTo(s, ev)
		}
	}
}
