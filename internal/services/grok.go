package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// xAI Grok Imagine Video Generation Service
// The second video model family. Follows a deferred request pattern:
// submit generation → poll by request_id → download. Takes the start keyframe
// as a source image URL; motion is described entirely by the prompt.
// ---------------------------------------------------------------------------

const (
	grokBaseURL           = "https://api.x.ai/v1"
	grokVideoModel        = "grok-imagine-video"
	grokInitialDelay      = 15 * time.Second // Wait before first poll (videos typically take 30-40s)
	grokPollMinInterval   = 5 * time.Second
	grokPollMaxInterval   = 20 * time.Second
	grokPollBackoffFactor = 1.5
	grokMaxPollDuration   = 5 * time.Minute // Hard timeout per clip
	grokMinDuration       = 1
	grokMaxDuration       = 15
	grokDefaultDuration   = 8
	grokDefaultResolution = "720p"
)

type GrokService struct {
	apiKey     string
	httpClient *http.Client
}

func NewGrokService(apiKey string) *GrokService {
	return &GrokService{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // Per HTTP call, not the full poll cycle
		},
	}
}

// grokGenerationRequest is the body for POST /v1/videos/generations
type grokGenerationRequest struct {
	Prompt      string          `json:"prompt"`
	Model       string          `json:"model"`
	Image       *grokImageInput `json:"image,omitempty"`
	Duration    int             `json:"duration,omitempty"`
	AspectRatio string          `json:"aspect_ratio,omitempty"`
	Resolution  string          `json:"resolution,omitempty"`
}

type grokImageInput struct {
	URL string `json:"url"`
}

type grokGenerationResponse struct {
	RequestID string `json:"request_id"`
}

// grokVideoResult is the unified response from GET /v1/videos/{request_id}.
//
// xAI returns two different shapes depending on state:
//   - Pending: {"status":"pending"}
//   - Completed: {"video":{"url":"...","duration":8},"model":"..."}
//     (no "status" field when completed — status will be "")
//   - Failed: {"status":"failed","error":"..."}
type grokVideoResult struct {
	Status string           `json:"status"`
	Video  *grokVideoOutput `json:"video,omitempty"`
	Model  string           `json:"model,omitempty"`
	Error  string           `json:"error"`
}

type grokVideoOutput struct {
	URL               string `json:"url"`
	Duration          int    `json:"duration"`
	RespectModeration bool   `json:"respect_moderation"`
}

// GenerateVideo generates a clip from the start keyframe's public URL.
// durationSec is clamped to xAI's 1-15s range; 0 means the 8s default.
// Returns the raw video bytes (MP4).
func (s *GrokService) GenerateVideo(ctx context.Context, prompt, imageURL string, durationSec int, aspectRatio string) ([]byte, error) {
	if durationSec <= 0 {
		durationSec = grokDefaultDuration
	}
	if durationSec < grokMinDuration {
		durationSec = grokMinDuration
	}
	if durationSec > grokMaxDuration {
		durationSec = grokMaxDuration
	}

	if aspectRatio == "" {
		aspectRatio = "16:9"
	}

	reqBody := grokGenerationRequest{
		Prompt:      prompt,
		Model:       grokVideoModel,
		Duration:    durationSec,
		AspectRatio: aspectRatio,
		Resolution:  grokDefaultResolution,
	}

	if imageURL != "" {
		reqBody.Image = &grokImageInput{URL: imageURL}
	}

	log.Printf("[Grok Video] Starting video generation (promptLen=%d, hasImage=%v, duration=%ds, aspect=%s)",
		len(prompt), imageURL != "", durationSec, aspectRatio)

	requestID, err := s.submitGeneration(ctx, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to submit video generation: %w", err)
	}

	log.Printf("[Grok Video] Generation submitted, request_id=%s", requestID)

	result, err := s.pollForResult(ctx, requestID)
	if err != nil {
		return nil, err
	}

	log.Printf("[Grok Video] Video ready (duration=%ds), downloading from URL...", result.Video.Duration)

	videoBytes, err := s.downloadVideo(ctx, result.Video.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	log.Printf("[Grok Video] Video downloaded successfully (%d bytes)", len(videoBytes))
	return videoBytes, nil
}

// submitGeneration sends the initial request and returns the request_id.
func (s *GrokService) submitGeneration(ctx context.Context, reqBody grokGenerationRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", grokBaseURL+"/videos/generations", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", classifyHTTPError("xAI", resp.StatusCode, string(body))
	}

	var genResp grokGenerationResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to parse generation response: %w (body: %s)", err, string(body))
	}

	if genResp.RequestID == "" {
		return "", fmt.Errorf("no request_id in generation response: %s", string(body))
	}

	return genResp.RequestID, nil
}

// pollForResult polls GET /v1/videos/{request_id} until ready or failed.
//
// Polling strategy: exponential backoff starting at 5s, scaling by 1.5x up to
// a 20s cap. An initial 15s delay avoids wasting calls on guaranteed
// "pending" responses. Hard timeout: 5 minutes per clip.
func (s *GrokService) pollForResult(ctx context.Context, requestID string) (*grokVideoResult, error) {
	deadline := time.Now().Add(grokMaxPollDuration)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("video generation cancelled: %w", ctx.Err())
	case <-time.After(grokInitialDelay):
	}

	interval := grokPollMinInterval
	pollCount := 0

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("video generation timed out after %v (polled %d times)", grokMaxPollDuration, pollCount)
		}

		pollCount++
		result, err := s.fetchResult(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll video status (attempt %d): %w", pollCount, err)
		}

		switch {
		case result.Status == "failed":
			if looksLikeSafetyBlock(result.Error) {
				return nil, fmt.Errorf("video generation failed: %s: %w", result.Error, ErrContentRejected)
			}
			return nil, fmt.Errorf("video generation failed: %s", result.Error)
		case result.Video != nil && result.Video.URL != "":
			return result, nil
		}

		log.Printf("[Grok Video] Poll %d: status=%q, waiting %v", pollCount, result.Status, interval)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("video generation cancelled: %w", ctx.Err())
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * grokPollBackoffFactor)
		if interval > grokPollMaxInterval {
			interval = grokPollMaxInterval
		}
	}
}

func (s *GrokService) fetchResult(ctx context.Context, requestID string) (*grokVideoResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", grokBaseURL+"/videos/"+requestID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError("xAI", resp.StatusCode, string(body))
	}

	var result grokVideoResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w (body: %s)", err, string(body))
	}

	return &result, nil
}

func (s *GrokService) downloadVideo(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Downloads can be large; give them their own generous timeout.
	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
