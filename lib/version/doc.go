// cmd/effect-run prints [Full] for its --version flag; cmd/effect-worker
// has no version flag. See lib/binhash for hashing the resolved
// runtime/worker binaries for startup diagnostics.
package version
