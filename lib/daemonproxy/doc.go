// The worker subprocess this package supervises is built by
// cmd/effect-worker when invoked with the "nix-daemon" verb; see
// [lib/workerprotocol] for the frame types exchanged over its stdio.
package daemonproxy
