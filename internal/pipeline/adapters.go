package pipeline

import (
	"context"

	"github.com/velvela/shotcraft/internal/services"
)

// VeoClient adapts VeoService to the VideoClient interface. Veo consumes raw
// image bytes and supports a last-frame conditioning image, so dual mode maps
// onto its native request.
type VeoClient struct {
	Service *services.VeoService
}

func (c *VeoClient) Generate(ctx context.Context, req VideoRequest) ([]byte, error) {
	return c.Service.GenerateVideo(ctx, req.Prompt, req.StartImage, req.StartMime, req.EndImage, req.EndMime, req.AspectRatio)
}

// GrokClient adapts GrokService. The xAI API takes a single source image by
// URL, so dual-mode requests animate from the start frame only.
type GrokClient struct {
	Service *services.GrokService
}

func (c *GrokClient) Generate(ctx context.Context, req VideoRequest) ([]byte, error) {
	return c.Service.GenerateVideo(ctx, req.Prompt, req.StartURL, req.DurationSec, req.AspectRatio)
}
