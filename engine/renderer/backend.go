package renderer

import (
	"github.com/spaghettifunk/anima-rhi/engine/renderer/metadata"
)

type (
	Backend        = metadata.Backend
	DrawableTarget = metadata.DrawableTarget
)
