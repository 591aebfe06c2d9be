package graph

import "fmt"

// Connection links an output pin of one node to an input pin of another.
type Connection struct {
	ID           string
	SourceNodeID string
	SourceOutput string
	TargetNodeID string
	TargetInput  string
}

// Validate checks that every field is set and the connection is not a
// self-loop.
func (c Connection) Validate() error {
	switch {
	case c.SourceNodeID == "":
		return fmt.Errorf("%w: source node id is empty", ErrInvalidConnection)
	case c.TargetNodeID == "":
		return fmt.Errorf("%w: target node id is empty", ErrInvalidConnection)
	case c.SourceOutput == "":
		return fmt.Errorf("%w: source output is empty", ErrInvalidConnection)
	case c.TargetInput == "":
		return fmt.Errorf("%w: target input is empty", ErrInvalidConnection)
	case c.SourceNodeID == c.TargetNodeID:
		return fmt.Errorf("%w: %s", ErrSelfLoop, c.SourceNodeID)
	}
	return nil
}

func (c Connection) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", c.SourceNodeID, c.SourceOutput, c.TargetNodeID, c.TargetInput)
}
