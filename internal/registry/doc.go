// Package registry is the catalogue of built-in node kinds.
//
// Each package under modules/ implements Module and registers a factory for
// its node kind. The registry maps the kind names used in saved graphs to
// those factories, and is validated once at startup so that a mismatch
// between a module and its declared kind is caught before any graph runs.
package registry
