package metadata

import "strings"

/**
 * @brief The channels cleared by a clear call.
 * Can be combined together for multiple clearing functions.
 */
type ClearMask uint32

const (
	ClearNone    ClearMask = 0x0
	ClearColor   ClearMask = 0x1
	ClearDepth   ClearMask = 0x2
	ClearStencil ClearMask = 0x4
	ClearAll               = ClearColor | ClearDepth | ClearStencil
)

func (m ClearMask) Has(flag ClearMask) bool {
	return m&flag == flag
}

func (m ClearMask) String() string {
	if m == ClearNone {
		return "none"
	}
	var parts []string
	if m.Has(ClearColor) {
		parts = append(parts, "color")
	}
	if m.Has(ClearDepth) {
		parts = append(parts, "depth")
	}
	if m.Has(ClearStencil) {
		parts = append(parts, "stencil")
	}
	return strings.Join(parts, "|")
}

// Target is a surface that can be cleared: pixel size and the number of
// colour attachments.
type Target interface {
	Width() int
	Height() int
	ColorAttachmentCount() int
}
