package models

import (
	"time"
)

// Enums

type FrameStatus string

const (
	FrameStatusPending    FrameStatus = "pending"
	FrameStatusGenerating FrameStatus = "generating"
	FrameStatusCompleted  FrameStatus = "completed"
	FrameStatusFailed     FrameStatus = "failed"
)

type FrameRole string

const (
	FrameRoleStart FrameRole = "start"
	FrameRoleEnd   FrameRole = "end"
)

// VisualStyle is a closed set of known project styles. Unknown values are
// carried through the prompt assembler verbatim instead of being rejected,
// so a project created with a newer style string still renders.
type VisualStyle string

const (
	StyleCinematic   VisualStyle = "cinematic"
	StyleAnime       VisualStyle = "anime"
	StyleWatercolor  VisualStyle = "watercolor"
	StyleCyberpunk   VisualStyle = "cyberpunk"
	StyleNoir        VisualStyle = "noir"
	StyleDocumentary VisualStyle = "documentary"
	StylePixelArt    VisualStyle = "pixel_art"
)

// CameraMovement is a closed set of known camera movements. The guide table
// falls back to a generic composition instruction for anything else.
type CameraMovement string

const (
	CameraStatic   CameraMovement = "static"
	CameraPanLeft  CameraMovement = "pan_left"
	CameraPanRight CameraMovement = "pan_right"
	CameraTiltUp   CameraMovement = "tilt_up"
	CameraTiltDown CameraMovement = "tilt_down"
	CameraZoomIn   CameraMovement = "zoom_in"
	CameraZoomOut  CameraMovement = "zoom_out"
	CameraDollyIn  CameraMovement = "dolly_in"
	CameraDollyOut CameraMovement = "dolly_out"
	CameraTracking CameraMovement = "tracking"
	CameraOrbit    CameraMovement = "orbit"
	CameraHandheld CameraMovement = "handheld"
)

// VideoModel selects which downstream video service renders a shot's interval.
// The two services expect structurally different prompt framing, so the prompt
// assembler keys its template family off this value.
type VideoModel string

const (
	VideoModelVeo  VideoModel = "veo"
	VideoModelGrok VideoModel = "grok"
)

type BatchMode string

const (
	BatchFillMissing   BatchMode = "fill_missing"
	BatchRegenerateAll BatchMode = "regenerate_all"
)

type RenderEventKind string

const (
	RenderEventKeyframe RenderEventKind = "keyframe"
	RenderEventVideo    RenderEventKind = "video"
	RenderEventNineGrid RenderEventKind = "nine_grid"
)

// Models

// Keyframe is a single still image anchoring the start or end of a shot's
// video. ImageURL is set iff Status is completed (manual uploads always land
// in completed).
type Keyframe struct {
	ID           string      `json:"id"`
	Role         FrameRole   `json:"role"`
	VisualPrompt string      `json:"visual_prompt"`
	ImageURL     *string     `json:"image_url,omitempty"`
	Status       FrameStatus `json:"status"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Interval is the generated video clip transitioning between a shot's two
// keyframes. Generation requires the referenced start keyframe to be
// completed; the end keyframe is optional and selects dual-image mode.
type Interval struct {
	ID             string      `json:"id"`
	StartFrameID   string      `json:"start_frame_id"`
	EndFrameID     *string     `json:"end_frame_id,omitempty"`
	DurationSec    int         `json:"duration_sec"`
	MotionStrength float64     `json:"motion_strength"`
	VideoPrompt    string      `json:"video_prompt"`
	VideoURL       *string     `json:"video_url,omitempty"`
	Status         FrameStatus `json:"status"`
	ErrorMessage   *string     `json:"error_message,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Panel is one of the nine camera-angle alternatives in a 3x3 storyboard grid.
type Panel struct {
	Index       int    `json:"index"` // 0-8, left-to-right, top-to-bottom
	ShotSize    string `json:"shot_size"`
	CameraAngle string `json:"camera_angle"`
	Description string `json:"description"`
}

// NineGrid holds the state of a shot's 3x3 storyboard decomposition.
// Panels has exactly 9 entries once planning has succeeded.
type NineGrid struct {
	Status       FrameStatus `json:"status"`
	ImageURL     *string     `json:"image_url,omitempty"`
	Panels       []Panel     `json:"panels,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Shot is one narrative camera unit. Keyframes and the interval are created
// lazily on first generation or upload; a nil pointer means "never generated",
// which is distinct from a failed attempt.
type Shot struct {
	ID                 string            `json:"id"`
	SceneID            string            `json:"scene_id"`
	ActionSummary      string            `json:"action_summary"`
	Dialogue           *string           `json:"dialogue,omitempty"`
	CameraMovement     CameraMovement    `json:"camera_movement"`
	CharacterIDs       []string          `json:"character_ids"`
	SelectedVariations map[string]string `json:"selected_variations,omitempty"` // characterID -> variationID
	StartFrame         *Keyframe         `json:"start_frame,omitempty"`
	EndFrame           *Keyframe         `json:"end_frame,omitempty"`
	Interval           *Interval         `json:"interval,omitempty"`
	VideoModel         VideoModel        `json:"video_model"`
	NineGrid           *NineGrid         `json:"nine_grid,omitempty"`
}

// Keyframe returns the keyframe for the given role, nil if never created.
func (s *Shot) Keyframe(role FrameRole) *Keyframe {
	if role == FrameRoleEnd {
		return s.EndFrame
	}
	return s.StartFrame
}

// SetKeyframe installs kf as the shot's start or end frame.
func (s *Shot) SetKeyframe(role FrameRole, kf *Keyframe) {
	if role == FrameRoleEnd {
		s.EndFrame = kf
		return
	}
	s.StartFrame = kf
}

// Scene is a location/time/atmosphere context shared by shots. Immutable once
// parsed, except for reference-image updates from the art-direction side.
type Scene struct {
	ID             string  `json:"id"`
	Location       string  `json:"location"`
	Time           string  `json:"time"`
	Atmosphere     string  `json:"atmosphere"`
	ReferenceImage *string `json:"reference_image,omitempty"`
}

// Variation is an alternate look for a character (outfit, age, injury state).
type Variation struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	ReferenceImage *string `json:"reference_image,omitempty"`
}

type Character struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Gender         string      `json:"gender"`
	Age            string      `json:"age"`
	Personality    string      `json:"personality"`
	ReferenceImage *string     `json:"reference_image,omitempty"` // base look
	Variations     []Variation `json:"variations,omitempty"`
}

// ScriptData is the parsed script consumed from the script collaborator.
type ScriptData struct {
	Characters        []Character `json:"characters"`
	Scenes            []Scene     `json:"scenes"`
	TargetDurationSec int         `json:"target_duration_sec"`
	Language          string      `json:"language"`
	VisualStyle       VisualStyle `json:"visual_style"`
}

// CharacterByID looks up a character in parse order.
func (sd *ScriptData) CharacterByID(id string) *Character {
	for i := range sd.Characters {
		if sd.Characters[i].ID == id {
			return &sd.Characters[i]
		}
	}
	return nil
}

// SceneByID looks up a scene in parse order.
func (sd *ScriptData) SceneByID(id string) *Scene {
	for i := range sd.Scenes {
		if sd.Scenes[i].ID == id {
			return &sd.Scenes[i]
		}
	}
	return nil
}

// ArtDirection is the optional global brief produced by the art-direction
// collaborator. When present it is interpolated into prompts ahead of the
// per-scene and per-character details.
type ArtDirection struct {
	ColorPalette      []string `json:"color_palette,omitempty"`
	CharacterDesign   string   `json:"character_design,omitempty"`
	LightingTexture   string   `json:"lighting_texture,omitempty"`
	MoodKeywords      []string `json:"mood_keywords,omitempty"`
	ConsistencyAnchor string   `json:"consistency_anchor,omitempty"`
}

// RenderEvent is one entry in the project's append-only render log. One is
// recorded for every keyframe/video/nine-grid attempt, success or failure.
type RenderEvent struct {
	ID        string          `json:"id"`
	ShotID    string          `json:"shot_id"`
	Kind      RenderEventKind `json:"kind"`
	Status    FrameStatus     `json:"status"`
	Message   string          `json:"message,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Project owns all shots. Shot order is narrative order.
type Project struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Language     string        `json:"language"`
	VisualStyle  VisualStyle   `json:"visual_style"`
	Shots        []Shot        `json:"shots"`
	ScriptData   *ScriptData   `json:"script_data,omitempty"`
	ArtDirection *ArtDirection `json:"art_direction,omitempty"`
	RenderLog    []RenderEvent `json:"render_log"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ShotByID returns the shot and its narrative index, or nil and -1.
func (p *Project) ShotByID(id string) (*Shot, int) {
	for i := range p.Shots {
		if p.Shots[i].ID == id {
			return &p.Shots[i], i
		}
	}
	return nil, -1
}

// DTOs for API requests/responses

type CreateProjectRequest struct {
	Title       string      `json:"title"`
	Language    *string     `json:"language,omitempty"`     // Default: "en"
	VisualStyle *string     `json:"visual_style,omitempty"` // Default: "cinematic"
	ScriptText  *string     `json:"script_text,omitempty"`  // Optional: parsed on create
	ScriptData  *ScriptData `json:"script_data,omitempty"`  // Pre-parsed alternative
}

type AddShotRequest struct {
	SceneID        string         `json:"scene_id,omitempty"`
	ActionSummary  string         `json:"action_summary"`
	Dialogue       *string        `json:"dialogue,omitempty"`
	CameraMovement CameraMovement `json:"camera_movement,omitempty"`
	CharacterIDs   []string       `json:"character_ids,omitempty"`
	VideoModel     *string        `json:"video_model,omitempty"`
}

type EditPromptRequest struct {
	VisualPrompt string `json:"visual_prompt"`
}

type GenerateVideoRequest struct {
	DurationSec    *int     `json:"duration_sec,omitempty"`
	MotionStrength *float64 `json:"motion_strength,omitempty"`
	VideoModel     *string  `json:"video_model,omitempty"`
}

type BatchRequest struct {
	Mode BatchMode `json:"mode"`
}

// BatchProgress is the read-only projection a caller polls to render a
// progress indicator during batch generation.
type BatchProgress struct {
	Running   bool      `json:"running"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Message   string    `json:"message"`
	Aborted   bool      `json:"aborted"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SelectPanelRequest struct {
	PanelIndex int       `json:"panel_index"`
	Role       FrameRole `json:"role"` // keyframe role to adopt the crop into
}

type ProjectResponse struct {
	Project
	ShotCount int `json:"shot_count"`
}
