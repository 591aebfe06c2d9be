package graph

import "errors"

var (
	// ErrNodeNotFound is returned when a node id is not part of the graph.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNilNode is returned when adding a nil node.
	ErrNilNode = errors.New("node cannot be nil")
	// ErrDuplicateNode is returned when adding a node whose id is taken.
	ErrDuplicateNode = errors.New("node already exists")
	// ErrConnectionNotFound is returned when a connection id is unknown.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrDuplicateConnection is returned when a connection id is taken.
	ErrDuplicateConnection = errors.New("connection already exists")
	// ErrInvalidConnection is returned for connections with missing fields.
	ErrInvalidConnection = errors.New("invalid connection")
	// ErrUnknownPin is returned when a connection names an output the source
	// node does not have.
	ErrUnknownPin = errors.New("unknown output pin")
	// ErrSelfLoop is returned when a connection links a node to itself.
	ErrSelfLoop = errors.New("self-loop not allowed")
	// ErrCycle is returned by DetectCycles.
	ErrCycle = errors.New("cycle detected")
)
