package agent

// Chunk is one event in the internal response stream. A chunk may carry a
// text delta, newly-surfaced side-channel facts, or a terminal error; the
// protocol adapter transcodes the sequence into the wire format.
type Chunk struct {
	Content      string
	Datasets     []string
	SQLQueries   []string
	ToolMessages []string
	Err          error
}

// Emitter receives chunks as the agent produces them.
type Emitter func(Chunk)
