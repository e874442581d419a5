// The Daemon Proxy Supervisor ([lib/daemonproxy]) is this protocol's
// controller-side consumer in this module; the worker subprocess
// binary (cmd/effect-worker), including its evaluation runner and
// [lib/evalstate], is the sole implementation of the worker side.
package workerprotocol
