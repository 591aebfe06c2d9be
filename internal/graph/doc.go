// Package graph holds the dataflow graph: nodes, the connections between
// their pins, and the scheduler that runs them.
//
// # Responsibilities
//
//   - **Topology:** nodes in insertion order and connections in creation
//     order. Every connection endpoint refers to a node in the graph, and
//     removing a node removes every connection touching it.
//   - **Input resolution:** a node's inputs are read from the latest outputs
//     of the nodes wired into it.
//   - **Scheduling:** ExecuteAll runs nodes in passes. A node is ready once
//     every node feeding it has run in the current pass sequence. The number
//     of passes is capped at twice the node count, and a pass that runs
//     nothing ends the run early. Nodes caught in or behind a cycle are
//     left pending.
//
// # Duplicate input wiring
//
// Two connections may target the same input pin of the same node. Input
// resolution visits connections in creation order, so the most recently
// created connection wins. Connect logs a warning when it shadows another.
//
// # Concurrency
//
// Execution is sequential. Graph methods are safe for concurrent use:
// structural changes and runs take an exclusive lock, queries a shared one.
// Observers are called while the lock is held and must not call back into
// the graph.
package graph
