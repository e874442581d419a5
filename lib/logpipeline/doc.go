// The effect runner constructs one Pipeline per run to carry a
// builder's captured stdout/stderr to the log-shipping socket named
// in spec.md §5; see [lib/workerprotocol] for the unrelated but
// similarly-framed controller/worker command stream.
package logpipeline
