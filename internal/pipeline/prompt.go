package pipeline

import (
	"fmt"
	"strings"

	"github.com/velvela/shotcraft/internal/models"
)

// Section markers inside an assembled keyframe prompt. The style marker
// doubles as the truncation point when recovering the base narrative from a
// previously assembled prompt, so regeneration never stacks layers twice.
const (
	styleMarker  = "\n\nVisual style: "
	cameraMarker = "\nCamera: "
)

// techBlock is the fixed trailing block of technical and quality requirements
// appended to every keyframe prompt.
const techBlock = "\n\nTechnical requirements: single high-detail still frame, 16:9 composition, " +
	"cinematic lighting with soft key and gentle rim light, shallow depth of field " +
	"with the subject in crisp focus, no text, no watermarks, no split frames."

// stylePhrase expands a known visual style into its prompt vocabulary.
// Unknown styles pass through verbatim so newer style strings still render.
func stylePhrase(style models.VisualStyle) string {
	switch style {
	case models.StyleCinematic:
		return "cinematic live-action film still, natural color grading, filmic grain"
	case models.StyleAnime:
		return "hand-drawn anime, clean line art, cel shading, vivid saturated palette"
	case models.StyleWatercolor:
		return "soft watercolor painting, bleeding pigment edges, visible paper texture"
	case models.StyleCyberpunk:
		return "neon-drenched cyberpunk, high contrast, wet reflective surfaces, holographic signage"
	case models.StyleNoir:
		return "black-and-white film noir, hard shadows, venetian-blind light, deep contrast"
	case models.StyleDocumentary:
		return "naturalistic documentary photography, available light, unposed framing"
	case models.StylePixelArt:
		return "detailed pixel art, limited palette, crisp dithering, 32-bit era fidelity"
	default:
		return string(style)
	}
}

// KeyframePromptInput carries everything the assembler layers into a
// keyframe prompt besides the base narrative.
type KeyframePromptInput struct {
	Style        models.VisualStyle
	Movement     models.CameraMovement
	Role         models.FrameRole
	ArtDirection *models.ArtDirection
	Scene        *models.Scene
	Characters   []models.Character
}

// BuildKeyframePrompt assembles the final text prompt for one keyframe.
// Fixed layering order: base narrative, visual style, art direction brief,
// scene and character details, camera composition line, technical block.
// basePrompt may itself be a previously assembled prompt; the original base
// narrative is re-extracted first so assembly is idempotent.
func BuildKeyframePrompt(basePrompt string, in KeyframePromptInput) string {
	var b strings.Builder

	b.WriteString(ExtractBasePrompt(basePrompt))

	b.WriteString(styleMarker)
	b.WriteString(stylePhrase(in.Style))

	// The art-direction brief comes ahead of the per-scene/per-character
	// details so global consistency rules outrank shot specifics.
	if ad := in.ArtDirection; ad != nil {
		if ad.ConsistencyAnchor != "" {
			b.WriteString("\nConsistency: ")
			b.WriteString(ad.ConsistencyAnchor)
		}
		if len(ad.ColorPalette) > 0 {
			b.WriteString("\nColor palette: ")
			b.WriteString(strings.Join(ad.ColorPalette, ", "))
		}
		if ad.CharacterDesign != "" {
			b.WriteString("\nCharacter design: ")
			b.WriteString(ad.CharacterDesign)
		}
		if ad.LightingTexture != "" {
			b.WriteString("\nLighting and texture: ")
			b.WriteString(ad.LightingTexture)
		}
		if len(ad.MoodKeywords) > 0 {
			b.WriteString("\nMood: ")
			b.WriteString(strings.Join(ad.MoodKeywords, ", "))
		}
	}

	if sc := in.Scene; sc != nil {
		fmt.Fprintf(&b, "\nSetting: %s, %s.", sc.Location, sc.Time)
		if sc.Atmosphere != "" {
			fmt.Fprintf(&b, " Atmosphere: %s.", sc.Atmosphere)
		}
	}

	if len(in.Characters) > 0 {
		names := make([]string, 0, len(in.Characters))
		for _, c := range in.Characters {
			names = append(names, c.Name)
		}
		b.WriteString("\nFeaturing: ")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString(". Match each character's appearance to the attached reference images.")
	}

	b.WriteString(cameraMarker)
	b.WriteString(movementLabel(in.Movement))
	b.WriteString(", ")
	b.WriteString(CameraGuide(in.Movement, in.Role))
	b.WriteString(".")

	b.WriteString(techBlock)

	return b.String()
}

// ExtractBasePrompt recovers the base narrative from a possibly-assembled
// prompt by truncating before the first style marker. Prompts that were never
// assembled come back unchanged.
func ExtractBasePrompt(prompt string) string {
	if idx := strings.Index(prompt, styleMarker); idx >= 0 {
		return prompt[:idx]
	}
	return prompt
}

// movementLabel renders a movement enum as readable prompt text.
func movementLabel(movement models.CameraMovement) string {
	label := strings.TrimSpace(string(movement))
	if label == "" {
		return "static shot"
	}
	return strings.ReplaceAll(strings.ToLower(label), "_", " ")
}

// Video prompt templates. The two downstream services want structurally
// different instruction framing: Veo gets explicit frame-transition wording
// because it receives both keyframes, while Grok animates a single frame and
// wants the action and movement appended to a short language directive.
// Each family has a default-language (English) variant and a variant for all
// other project languages.

const veoVideoPromptEN = `Animate a seamless transition between the provided start frame and end frame.

Action during the shot: %s

Camera: %s. The camera movement must read clearly across the transition. Begin exactly on the start frame's composition and arrive exactly on the end frame's composition.

Preserve the art style, color grading, and character appearance of the input frames throughout. Natural, grounded motion only. Silent video, no generated audio or dialogue.`

const veoVideoPromptIntl = `Animate a seamless transition between the provided start frame and end frame. Any incidental on-screen writing must be in %s.

Action during the shot: %s

Camera: %s. The camera movement must read clearly across the transition. Begin exactly on the start frame's composition and arrive exactly on the end frame's composition.

Preserve the art style, color grading, and character appearance of the input frames throughout. Natural, grounded motion only. Silent video, no generated audio or dialogue.`

const grokVideoPromptEN = `Bring this frame to life. %s Camera movement: %s. Keep the source frame's style and palette. Silent, no audio.`

const grokVideoPromptIntl = `Bring this frame to life (scene language: %s). %s Camera movement: %s. Keep the source frame's style and palette. Silent, no audio.`

// BuildVideoPrompt selects the template family for the shot's video model and
// the language variant for the project language, then substitutes the action
// summary and camera movement.
func BuildVideoPrompt(actionSummary string, movement models.CameraMovement, videoModel models.VideoModel, language string) string {
	label := movementLabel(movement)
	defaultLang := language == "" || strings.EqualFold(language, "en")

	switch videoModel {
	case models.VideoModelGrok:
		if defaultLang {
			return fmt.Sprintf(grokVideoPromptEN, actionSummary, label)
		}
		return fmt.Sprintf(grokVideoPromptIntl, language, actionSummary, label)
	default:
		// Veo is the default family, covering unknown model strings too.
		if defaultLang {
			return fmt.Sprintf(veoVideoPromptEN, actionSummary, label)
		}
		return fmt.Sprintf(veoVideoPromptIntl, language, actionSummary, label)
	}
}
