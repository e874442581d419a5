// Package secret provides a memory-safe buffer for sensitive data such
// as access tokens, decrypted secret-store plaintext, and age private
// keys.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, which is what lets Close guarantee the material does not persist
// after release.
//
// Constructors: [New] allocates a zero-filled buffer of a given size;
// [NewFromBytes] copies into protected memory and zeros the source.
// Access via [Buffer.Bytes] (a slice into the mmap region) or
// [Buffer.String] (a heap copy, for API boundaries that require a
// string). After Close, any access panics. Close is idempotent.
//
// Depends only on golang.org/x/sys/unix. [lib/sealed] uses it to hold
// decrypted secret-store plaintext and age private keys.
// [lib/sensitive] is a separate generic reveal-only wrapper and does
// not use this buffer.
package secret
