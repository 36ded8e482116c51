package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

const geminiModel = "gemini-3-pro-image-preview"

// GeminiService generates still images via the generative language REST API.
// Reference images are passed inline after the text prompt, in caller order —
// the model weights earlier references more heavily, so the resolver puts the
// scene anchor first and character identities after it.
type GeminiService struct {
	apiKey string
	client *http.Client

	mu       sync.Mutex
	refCache map[string]cachedImage // reference URL -> downloaded bytes
}

type cachedImage struct {
	data     []byte
	mimeType string
}

func NewGeminiService(apiKey string) *GeminiService {
	return &GeminiService{
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 300 * time.Second},
		refCache: make(map[string]cachedImage),
	}
}

// Gemini API request/response structures
type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content      geminiResponseContent `json:"content"`
	FinishReason string                `json:"finishReason,omitempty"`
}

type geminiResponseContent struct {
	Parts []geminiResponsePart `json:"parts"`
}

type geminiResponsePart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

// GenerateImage generates a single image from an assembled prompt plus an
// ordered list of conditioning image URLs. Each call is independent — safe for
// parallel execution across shots. Reference URLs that cannot be fetched are
// skipped with a warning rather than failing the whole generation.
func (s *GeminiService) GenerateImage(ctx context.Context, prompt string, referenceURLs []string, aspectRatio string) ([]byte, error) {
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}

	parts := []geminiPart{{Text: prompt}}

	for _, url := range referenceURLs {
		data, mimeType, err := s.fetchReference(ctx, url)
		if err != nil {
			log.Printf("[Gemini] WARNING: could not fetch reference image %s: %v (skipping)", url, err)
			continue
		}
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(data),
			},
		})
	}

	reqBody := geminiGenerateContentRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: parts},
		},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig: &geminiImageConfig{
				AspectRatio: aspectRatio,
				ImageSize:   "2K",
			},
		},
	}

	return s.doGenerateContent(ctx, reqBody)
}

func (s *GeminiService) doGenerateContent(ctx context.Context, reqBody geminiGenerateContentRequest) ([]byte, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", geminiModel, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError("gemini", resp.StatusCode, string(bodyBytes))
	}

	var geminiResp geminiGenerateContentResponse
	if err := json.Unmarshal(bodyBytes, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	candidate := geminiResp.Candidates[0]
	if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "PROHIBITED_CONTENT" {
		return nil, fmt.Errorf("gemini finish reason %s: %w", candidate.FinishReason, ErrContentRejected)
	}

	var textParts []string
	for _, part := range candidate.Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			imageData, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 image: %w", err)
			}
			return imageData, nil
		}
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}

	if len(textParts) > 0 {
		snippet := textParts[0]
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("gemini returned text instead of image: %s", snippet)
	}
	return nil, fmt.Errorf("no image data found in response (got %d parts, none with inlineData)", len(candidate.Content.Parts))
}

// fetchReference downloads a conditioning image, memoizing by URL so repeated
// generations against the same scene/character anchors don't re-download.
func (s *GeminiService) fetchReference(ctx context.Context, url string) ([]byte, string, error) {
	s.mu.Lock()
	if cached, ok := s.refCache[url]; ok {
		s.mu.Unlock()
		return cached.data, cached.mimeType, nil
	}
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download reference image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("reference image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read reference image body: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	s.mu.Lock()
	s.refCache[url] = cachedImage{data: data, mimeType: mimeType}
	s.mu.Unlock()

	log.Printf("[Gemini] Downloaded reference image (%d bytes, %s)", len(data), mimeType)
	return data, mimeType, nil
}
