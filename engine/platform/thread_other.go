//go:build !linux && !windows

package platform

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentThreadID falls back to the goroutine id, parsed from the header of
// the goroutine's stack trace ("goroutine 42 [running]:").
func currentThreadID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i > 0 {
		field = field[:i]
	}
	id, _ := strconv.ParseUint(string(field), 10, 64)
	return id
}
