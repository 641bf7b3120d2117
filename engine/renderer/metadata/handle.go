package metadata

import "fmt"

// Handle is an opaque token for a native resource owned by a backend.
// Only the backend that issued a handle can interpret it.
type Handle uint64

/** @brief The zero handle, never issued by a backend. */
const InvalidHandle Handle = 0

func (h Handle) Valid() bool {
	return h != InvalidHandle
}

func (h Handle) String() string {
	return fmt.Sprintf("%#016x", uint64(h))
}
