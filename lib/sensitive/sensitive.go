// Package sensitive provides a type-level boundary around values that
// must never reach a log record, error payload, or serialized event.
//
// [Value] wraps any Go value. The only way to get the inner value back
// out is [Value.Reveal] — there is no implicit conversion, no exported
// field, and formatting a Value (with %v, %+v, %s, or via
// encoding/json) always yields a fixed placeholder regardless of the
// wrapped contents. This mirrors the discipline [lib/secret.Buffer]
// enforces at the memory level (zero-on-close, panic-after-close);
// Value extends the same "you must ask explicitly" contract to values
// that are not raw bytes — API tokens typed as strings, parsed secret
// maps, decrypted JSON documents.
//
// Composition: [Map] transforms the wrapped value without revealing it
// to the caller, and [PivotOption] turns a Value wrapping an optional
// value into an optional Value, for callers that need to branch on
// presence without revealing contents.
package sensitive

// Value wraps a T so that its contents cannot be read, logged, or
// serialized except through an explicit [Value.Reveal] call. The zero
// Value wraps the zero T; use [Wrap] to construct one with a specific
// value, which makes the marking step visible at call sites.
type Value[T any] struct {
	inner T
	set   bool
}

// redactedPlaceholder is printed in place of the wrapped value by every
// formatting path. It never depends on the wrapped contents.
const redactedPlaceholder = "sensitive.Value(<redacted>)"

// Wrap marks t as sensitive. It is the only constructor that takes a
// plain value ([Map] and [PivotOption] only derive from an existing
// Value, and a zero Value holds the zero T), so every place a secret
// enters the system is a visible call site.
func Wrap[T any](t T) Value[T] {
	return Value[T]{inner: t, set: true}
}

// Reveal extracts the wrapped value. This is the single named escape
// hatch from the sensitive boundary; grep for its call sites to audit
// every place secret material is read.
func Reveal[T any](v Value[T]) T {
	return v.inner
}

// Reveal extracts the wrapped value. Method form of the package-level
// [Reveal], for fluent call sites.
func (v Value[T]) Reveal() T {
	return v.inner
}

// IsSet reports whether the Value was constructed via [Wrap]. A zero
// Value (declared but never assigned) reports false.
func (v Value[T]) IsSet() bool {
	return v.set
}

// String implements fmt.Stringer. It never depends on the wrapped
// value, so %s, %v, and Println all redact.
func (v Value[T]) String() string {
	return redactedPlaceholder
}

// GoString implements fmt.GoStringer, covering %#v formatting.
func (v Value[T]) GoString() string {
	return redactedPlaceholder
}

// MarshalJSON always encodes as a fixed redacted string, so accidental
// inclusion of a Value in a struct that gets JSON-serialized (for a log
// line, an API response, a cache entry) cannot leak the contents.
// Callers that actually need to persist the wrapped value must do so
// through Reveal and their own explicit serialization path.
func (v Value[T]) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// Map applies f to the revealed value of v and rewraps the result,
// without ever exposing the intermediate value to the caller of Map.
func Map[T, U any](v Value[T], f func(T) U) Value[U] {
	return Value[U]{inner: f(v.inner), set: v.set}
}

// PivotOption turns a Value wrapping a pointer into an optional Value:
// nil becomes (zero Value, false); a non-nil pointer becomes a Value
// wrapping the pointee, paired with true. This lets a caller branch on
// presence (the Option) without revealing the contents, matching the
// spec's canonical "pivot" operation on Sensitive<Option<T>>.
func PivotOption[T any](v Value[*T]) (Value[T], bool) {
	if v.inner == nil {
		return Value[T]{}, false
	}
	return Value[T]{inner: *v.inner, set: v.set}, true
}
