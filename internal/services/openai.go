package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/velvela/shotcraft/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

const planModel = "gpt-5-mini"

type OpenAIService struct {
	client *openai.Client
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

// nineGridPlan is the structured output expected from the panel planning call.
type nineGridPlan struct {
	Panels []models.Panel `json:"panels"`
}

// NineGridContext carries the shot narrative the planner decomposes.
type NineGridContext struct {
	ActionSummary string
	Dialogue      string
	SceneLocation string
	SceneTime     string
	Atmosphere    string
	VisualStyle   string
}

// PlanNineGrid asks the model to decompose one shot into exactly nine
// alternative camera setups. Anything other than nine well-formed panels is a
// parse failure — the caller marks the nine-grid failed and retries by
// re-invoking planning.
func (s *OpenAIService) PlanNineGrid(ctx context.Context, shotCtx NineGridContext) ([]models.Panel, error) {
	systemPrompt := `You are a storyboard artist. Decompose the given shot into exactly 9 alternative camera setups for a 3x3 storyboard grid.

Respond with JSON only, in this shape:
{"panels":[{"index":0,"shot_size":"...","camera_angle":"...","description":"..."}]}

Rules:
- Exactly 9 panels, index 0 through 8, ordered left-to-right then top-to-bottom.
- shot_size: one of extreme wide, wide, full, medium, medium close-up, close-up, extreme close-up, over-the-shoulder, insert.
- camera_angle: a concrete angle (eye level, low angle, high angle, bird's eye, dutch, etc).
- description: one English sentence describing the composition of that panel.
- Each panel must depict the same moment of the same shot from a different setup.`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Shot action: %s\n", shotCtx.ActionSummary)
	if shotCtx.Dialogue != "" {
		fmt.Fprintf(&sb, "Dialogue: %s\n", shotCtx.Dialogue)
	}
	if shotCtx.SceneLocation != "" {
		fmt.Fprintf(&sb, "Location: %s (%s)\n", shotCtx.SceneLocation, shotCtx.SceneTime)
	}
	if shotCtx.Atmosphere != "" {
		fmt.Fprintf(&sb, "Atmosphere: %s\n", shotCtx.Atmosphere)
	}
	if shotCtx.VisualStyle != "" {
		fmt.Fprintf(&sb, "Visual style: %s\n", shotCtx.VisualStyle)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: planModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	rawContent := resp.Choices[0].Message.Content

	var plan nineGridPlan
	if err := json.Unmarshal([]byte(rawContent), &plan); err != nil {
		logRawResponse("nine-grid plan", rawContent)
		return nil, fmt.Errorf("failed to parse nine-grid plan: %w", err)
	}

	if len(plan.Panels) != 9 {
		logRawResponse("nine-grid plan", rawContent)
		return nil, fmt.Errorf("nine-grid plan returned %d panels, expected 9", len(plan.Panels))
	}

	for i, panel := range plan.Panels {
		var missing []string
		if panel.ShotSize == "" {
			missing = append(missing, "shot_size")
		}
		if panel.CameraAngle == "" {
			missing = append(missing, "camera_angle")
		}
		if panel.Description == "" {
			missing = append(missing, "description")
		}
		if len(missing) > 0 {
			logRawResponse("nine-grid plan", rawContent)
			return nil, fmt.Errorf("panel %d missing required fields: %v", i, missing)
		}
		// The model occasionally numbers from 1 or reorders; normalize to
		// position so index always matches grid placement.
		plan.Panels[i].Index = i
	}

	log.Printf("[OpenAI plan] nine-grid plan generated: 9 panels for action %q", truncate(shotCtx.ActionSummary, 60))
	return plan.Panels, nil
}

// ParseScript runs the one-shot script parsing call that produces the
// structured ScriptData consumed by the pipeline. This is a collaborator at
// the edge of the core — the pipeline only ever reads its output.
func (s *OpenAIService) ParseScript(ctx context.Context, scriptText, language string) (*models.ScriptData, error) {
	systemPrompt := fmt.Sprintf(`You are a script breakdown assistant. Parse the script into JSON:
{"characters":[{"id":"...","name":"...","gender":"...","age":"...","personality":"..."}],
 "scenes":[{"id":"...","location":"...","time":"...","atmosphere":"..."}],
 "target_duration_sec":60,
 "language":"%s",
 "visual_style":"cinematic"}

Use short lowercase slug ids. Every character and scene mentioned must appear once. Respond with JSON only.`, language)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: planModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: scriptText},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	rawContent := resp.Choices[0].Message.Content

	var data models.ScriptData
	if err := json.Unmarshal([]byte(rawContent), &data); err != nil {
		logRawResponse("script parse", rawContent)
		return nil, fmt.Errorf("failed to parse script data: %w", err)
	}

	if data.Language == "" {
		data.Language = language
	}

	log.Printf("[OpenAI plan] script parsed: %d characters, %d scenes", len(data.Characters), len(data.Scenes))
	return &data, nil
}

func logRawResponse(label, rawContent string) {
	const maxLogLen = 2000
	if len(rawContent) > maxLogLen {
		log.Printf("[OpenAI plan] %s raw response (truncated): %s...", label, rawContent[:maxLogLen])
	} else {
		log.Printf("[OpenAI plan] %s raw response: %s", label, rawContent)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
