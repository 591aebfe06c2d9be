// Package app contains the core application logic. It wires the plugin
// catalogue, the built-in node registry, the script engine and the
// observers together, then loads a graph document and runs it. It is
// decoupled from any specific entrypoint like a CLI or server.
package app
