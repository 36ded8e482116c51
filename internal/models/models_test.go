package models

import (
	"encoding/json"
	"testing"
)

func TestFrameStatusValues(t *testing.T) {
	statuses := []FrameStatus{
		FrameStatusPending,
		FrameStatusGenerating,
		FrameStatusCompleted,
		FrameStatusFailed,
	}
	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}
}

func TestShotKeyframeAccessors(t *testing.T) {
	shot := &Shot{ID: "shot-1"}

	if shot.Keyframe(FrameRoleStart) != nil || shot.Keyframe(FrameRoleEnd) != nil {
		t.Fatal("fresh shot must have nil keyframes")
	}

	start := &Keyframe{ID: "kf-start", Role: FrameRoleStart}
	end := &Keyframe{ID: "kf-end", Role: FrameRoleEnd}
	shot.SetKeyframe(FrameRoleStart, start)
	shot.SetKeyframe(FrameRoleEnd, end)

	if shot.Keyframe(FrameRoleStart) != start {
		t.Error("start accessor returned wrong keyframe")
	}
	if shot.Keyframe(FrameRoleEnd) != end {
		t.Error("end accessor returned wrong keyframe")
	}
}

func TestProjectShotByID(t *testing.T) {
	project := &Project{
		Shots: []Shot{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}

	shot, index := project.ShotByID("b")
	if shot == nil || index != 1 {
		t.Errorf("ShotByID(b) = %v, %d", shot, index)
	}
	// The pointer aliases the slice so callers can mutate in place.
	shot.ActionSummary = "changed"
	if project.Shots[1].ActionSummary != "changed" {
		t.Error("ShotByID must return a pointer into the project's slice")
	}

	if shot, index := project.ShotByID("ghost"); shot != nil || index != -1 {
		t.Errorf("ShotByID(ghost) = %v, %d", shot, index)
	}
}

func TestScriptDataLookups(t *testing.T) {
	sd := &ScriptData{
		Characters: []Character{{ID: "mara"}, {ID: "yusuf"}},
		Scenes:     []Scene{{ID: "pier"}},
	}

	if sd.CharacterByID("yusuf") == nil {
		t.Error("CharacterByID(yusuf) = nil")
	}
	if sd.CharacterByID("ghost") != nil {
		t.Error("unknown character must resolve to nil")
	}
	if sd.SceneByID("pier") == nil {
		t.Error("SceneByID(pier) = nil")
	}
	if sd.SceneByID("alley") != nil {
		t.Error("unknown scene must resolve to nil")
	}
}

func TestProjectJSONRoundTrip(t *testing.T) {
	url := "https://example.com/frame.png"
	project := Project{
		ID:          "proj-1",
		Title:       "Harbor at Dawn",
		Language:    "en",
		VisualStyle: StyleNoir,
		Shots: []Shot{
			{
				ID:             "shot-1",
				SceneID:        "pier",
				ActionSummary:  "A fisherman unties his boat",
				CameraMovement: CameraDollyIn,
				CharacterIDs:   []string{"mara"},
				SelectedVariations: map[string]string{
					"mara": "mara-raincoat",
				},
				StartFrame: &Keyframe{
					ID:           "kf-1",
					Role:         FrameRoleStart,
					VisualPrompt: "prompt",
					ImageURL:     &url,
					Status:       FrameStatusCompleted,
				},
				VideoModel: VideoModelVeo,
			},
		},
		RenderLog: []RenderEvent{
			{ID: "ev-1", ShotID: "shot-1", Kind: RenderEventKeyframe, Status: FrameStatusCompleted},
		},
	}

	data, err := json.Marshal(project)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Project
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.Shots[0].SelectedVariations["mara"] != "mara-raincoat" {
		t.Error("selected variations lost in round trip")
	}
	if decoded.Shots[0].StartFrame == nil || *decoded.Shots[0].StartFrame.ImageURL != url {
		t.Error("start frame lost in round trip")
	}
	if decoded.Shots[0].EndFrame != nil {
		t.Error("absent end frame must stay nil")
	}
	if len(decoded.RenderLog) != 1 {
		t.Error("render log lost in round trip")
	}
}
