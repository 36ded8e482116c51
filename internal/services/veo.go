package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Veo Video Generation Service
// Uses the Google Gen AI SDK to generate a shot's interval clip. The start
// keyframe is passed as the first frame; when an end keyframe is supplied it
// becomes the last frame, which switches Veo into transition mode between
// the two stills. Single-image mode animates the start frame alone.
// ---------------------------------------------------------------------------

const (
	defaultVeoModel    = "veo-3.1-generate-preview"
	veoPollInterval    = 10 * time.Second
	veoMaxPollDuration = 5 * time.Minute // Max time to wait for a single clip
)

type VeoService struct {
	apiKey string
	model  string
}

// NewVeoService creates a new Veo video generation service.
// model may be empty, defaulting to veo-3.1-generate-preview.
func NewVeoService(apiKey, model string) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoService{
		apiKey: apiKey,
		model:  model,
	}
}

// GenerateVideo generates a clip with the start image as the first frame and,
// when endImage is non-nil, the end image as the last frame.
//
// The async operation is polled internally until done or timed out. This
// blocks the calling goroutine — intentional, each shot's video job runs in
// its own worker goroutine.
func (s *VeoService) GenerateVideo(ctx context.Context, prompt string, startImage []byte, startMime string, endImage []byte, endMime string, aspectRatio string) ([]byte, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	if aspectRatio == "" {
		aspectRatio = "16:9"
	}

	firstFrame := &genai.Image{
		ImageBytes: startImage,
		MIMEType:   startMime,
	}

	config := &genai.GenerateVideosConfig{
		AspectRatio:      aspectRatio,
		PersonGeneration: "allow_adult",
		NumberOfVideos:   1,
	}

	mode := "single-image"
	if endImage != nil {
		config.LastFrame = &genai.Image{
			ImageBytes: endImage,
			MIMEType:   endMime,
		}
		mode = "dual-image"
	}

	log.Printf("[Veo] Starting video generation (model=%s, mode=%s, promptLen=%d, startImage=%d bytes)", s.model, mode, len(prompt), len(startImage))

	operation, err := client.Models.GenerateVideos(ctx, s.model, prompt, firstFrame, config)
	if err != nil {
		return nil, classifyVeoError(err)
	}

	log.Printf("[Veo] Operation started: %s", operation.Name)

	// Poll until done, cancelled, or timed out
	deadline := time.Now().Add(veoMaxPollDuration)
	pollCount := 0
	for !operation.Done {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("video generation timed out after %v (polled %d times)", veoMaxPollDuration, pollCount)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("video generation cancelled: %w", ctx.Err())
		case <-time.After(veoPollInterval):
		}

		pollCount++
		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to poll operation (attempt %d): %w", pollCount, err)
		}

		log.Printf("[Veo] Poll %d: done=%v", pollCount, operation.Done)
	}

	if operation.Error != nil && len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return nil, fmt.Errorf("video generation operation failed: %s", string(errJSON))
	}

	if operation.Response == nil {
		if operation.Metadata != nil {
			metaJSON, _ := json.Marshal(operation.Metadata)
			log.Printf("[Veo] Operation metadata: %s", string(metaJSON))
		}
		return nil, fmt.Errorf("no response in completed operation after %d polls (operation: %s)", pollCount, operation.Name)
	}

	// Videos filtered by the safety layer surface as a content rejection so
	// the shot lands in failed with a prompt-edit hint, not a retry hint.
	if operation.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(operation.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(operation.Response.RAIMediaFilteredReasons, ", ")
		}
		return nil, fmt.Errorf("%d video(s) filtered, reasons: %s: %w", operation.Response.RAIMediaFilteredCount, reasons, ErrContentRejected)
	}

	if len(operation.Response.GeneratedVideos) == 0 {
		respJSON, _ := json.Marshal(operation.Response)
		return nil, fmt.Errorf("no videos in response (full response: %s)", string(respJSON))
	}

	video := operation.Response.GeneratedVideos[0]
	if video.Video == nil {
		return nil, fmt.Errorf("generated video object is nil")
	}

	log.Printf("[Veo] Video ready, downloading...")

	downloadURI := genai.NewDownloadURIFromVideo(video.Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	log.Printf("[Veo] Video generated successfully (%d bytes, %d polls)", len(videoBytes), pollCount)

	return videoBytes, nil
}

// classifyVeoError maps SDK errors onto the shared taxonomy by wording, since
// the SDK does not expose structured status codes at this call site.
func classifyVeoError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthenticated") || strings.Contains(msg, "permission"):
		return fmt.Errorf("failed to start video generation: %v: %w", err, ErrUnauthorized)
	case strings.Contains(msg, "quota") || strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "overloaded"):
		return fmt.Errorf("failed to start video generation: %v: %w", err, ErrOverloaded)
	default:
		return fmt.Errorf("failed to start video generation: %w", err)
	}
}
