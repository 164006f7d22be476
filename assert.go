package ufs

import "fmt"

// internalInvariant aborts the process when cond is false. A handful of
// conditions (an out-of-range inode index on write, a read helper whose
// byte accounting doesn't add up) indicate a corrupted file system or a bug
// rather than a recoverable error, and those abort the process instead of
// returning an error code.
func internalInvariant(cond bool, msg string) {
	if !cond {
		panic(fmt.Sprintf("ufs: internal invariant violated: %s", msg))
	}
}
