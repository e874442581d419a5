// Package sealed is used by the Secret Store Reader ([lib/secretstore])
// to decrypt the secret database file with a run keypair before
// opening it as SQLite. [Encrypt] produces such a file; within this
// module it is called only from the secretstore tests.
package sealed
