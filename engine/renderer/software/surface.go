package software

import (
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima-rhi/engine/core"
	"github.com/spaghettifunk/anima-rhi/engine/math"
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

// Surface is an off-screen render target of the software backend: RGBA8
// colour attachments, a float32 depth plane and a uint8 stencil plane.
type Surface struct {
	backend *Backend
	width   int
	height  int
	colors  []*image.RGBA
	depth   []float32
	stencil []uint8
}

func newSurface(b *Backend, width, height, colorAttachments int) *Surface {
	s := &Surface{backend: b}
	s.allocate(width, height, colorAttachments)
	return s
}

func (s *Surface) allocate(width, height, colorAttachments int) {
	s.width, s.height = width, height
	s.colors = make([]*image.RGBA, colorAttachments)
	for i := range s.colors {
		s.colors[i] = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	s.depth = make([]float32, width*height)
	s.stencil = make([]uint8, width*height)
}

func (s *Surface) Width() int {
	return s.width
}

func (s *Surface) Height() int {
	return s.height
}

func (s *Surface) ColorAttachmentCount() int {
	return len(s.colors)
}

func (s *Surface) Backend() metadata.Backend {
	return s.backend
}

func (s *Surface) ColorFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

func (s *Surface) DepthFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatDepth32Float
}

func (s *Surface) StencilFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatStencil8
}

// Resize reallocates every plane. The contents are not preserved.
func (s *Surface) Resize(width, height int) error {
	if err := s.backend.check("Resize"); err != nil {
		return err
	}
	if width < 0 || height < 0 {
		return core.NewConfigurationError("surface", "size must not be negative, got %dx%d", width, height)
	}
	s.allocate(width, height, len(s.colors))
	return nil
}

// Snapshot copies one colour attachment.
func (s *Surface) Snapshot(attachment int) (*image.RGBA, error) {
	if err := s.backend.check("Snapshot"); err != nil {
		return nil, err
	}
	if attachment < 0 || attachment >= len(s.colors) {
		return nil, core.NewFatalUsageError("Snapshot", "attachment %d out of range [0, %d)", attachment, len(s.colors))
	}
	src := s.colors[attachment]
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst, nil
}

// DepthAt and StencilAt read back single texels. Out-of-range coordinates
// return zero.
func (s *Surface) DepthAt(x, y int) float32 {
	if !s.inside(x, y) {
		return 0
	}
	return s.depth[y*s.width+x]
}

func (s *Surface) StencilAt(x, y int) uint8 {
	if !s.inside(x, y) {
		return 0
	}
	return s.stencil[y*s.width+x]
}

func (s *Surface) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.width && y < s.height
}

func (s *Surface) clear(colors []gputypes.Color, depth float32, stencil uint32, mask metadata.ClearMask) {
	if mask.Has(metadata.ClearColor) {
		for i, img := range s.colors {
			fill(img.Pix, toRGBA(colors[i]))
		}
	}
	if mask.Has(metadata.ClearDepth) {
		d := math.Clamp(depth, 0, 1)
		for i := range s.depth {
			s.depth[i] = d
		}
	}
	if mask.Has(metadata.ClearStencil) {
		v := uint8(stencil)
		for i := range s.stencil {
			s.stencil[i] = v
		}
	}
}

// toRGBA converts to the premultiplied 8-bit layout of image.RGBA.
func toRGBA(c gputypes.Color) color.RGBA {
	p := c.Premultiplied()
	return color.RGBA{
		R: math.UnitToByte(p.R),
		G: math.UnitToByte(p.G),
		B: math.UnitToByte(p.B),
		A: math.UnitToByte(p.A),
	}
}

func fill(pix []uint8, c color.RGBA) {
	if len(pix) == 0 {
		return
	}
	pix[0], pix[1], pix[2], pix[3] = c.R, c.G, c.B, c.A
	// Double the filled prefix until the slice is covered.
	for filled := 4; filled < len(pix); filled *= 2 {
		copy(pix[filled:], pix[:filled])
	}
}
