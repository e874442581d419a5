// secretstore.Load is the sole entry point consumed by
// [lib/provisioner], which merges its result with caller-supplied
// extra secrets before evaluating conditions.
package secretstore
