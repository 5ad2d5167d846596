// Package pipeline runs the per-file analysis steps of an audit.
//
// Each discovered Solidity file flows through the same ordered steps
// (Slither, Solhint, then suppression of accepted findings), which write
// into a model.FileResult. BatchProcessor fans the files out over a bounded
// number of goroutines with errgroup while keeping results in discovery order.
package pipeline
