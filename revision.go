package progression

import "fmt"

// StreamState is the concurrency expectation applied when appending to a stream.
type StreamState interface {
	isStreamState()
}

// Any means append without checking the current revision.
type Any struct{}

// NoStream means the stream must not exist yet.
type NoStream struct{}

// StreamExists means the stream must already exist.
type StreamExists struct{}

// Revision means the stream must currently hold exactly this many events.
type Revision uint64

func (Any) isStreamState()          {}
func (NoStream) isStreamState()     {}
func (StreamExists) isStreamState() {}
func (Revision) isStreamState()     {}

func (Any) String() string          { return "any" }
func (NoStream) String() string     { return "no-stream" }
func (StreamExists) String() string { return "stream-exists" }
func (r Revision) String() string   { return fmt.Sprintf("revision(%d)", uint64(r)) }

// CheckRevision validates expected against the current number of events in a
// stream. Store implementations call it inside their write transaction.
func CheckRevision(stream string, expected StreamState, current uint64) error {
	switch rev := expected.(type) {
	case Any:
		return nil
	case NoStream:
		if current != 0 {
			return fmt.Errorf("stream %q: already exists: %w", stream, ErrStreamExists)
		}
	case StreamExists:
		if current == 0 {
			return fmt.Errorf("stream %q: should exist: %w", stream, ErrStreamNotFound)
		}
	case Revision:
		if current != uint64(rev) {
			return &StreamRevisionConflictError{
				Stream:           stream,
				ExpectedRevision: uint64(rev),
				ActualRevision:   current,
			}
		}
	default:
		return fmt.Errorf("stream %q: unsupported revision type %T: %w", stream, expected, ErrInvalidRevision)
	}
	return nil
}
