package pipeline

import (
	"reflect"
	"testing"

	"github.com/velvela/shotcraft/internal/models"
)

func strPtr(s string) *string { return &s }

func testScriptData() *models.ScriptData {
	return &models.ScriptData{
		Characters: []models.Character{
			{
				ID:             "mara",
				Name:           "Mara",
				ReferenceImage: strPtr("ref://mara-base"),
				Variations: []models.Variation{
					{ID: "mara-raincoat", Name: "Raincoat", ReferenceImage: strPtr("ref://mara-raincoat")},
					{ID: "mara-injured", Name: "Injured"}, // no reference image
				},
			},
			{
				ID:             "yusuf",
				Name:           "Yusuf",
				ReferenceImage: strPtr("ref://yusuf-base"),
			},
			{
				ID:   "stranger",
				Name: "Stranger", // no reference image at all
			},
		},
		Scenes: []models.Scene{
			{ID: "pier", Location: "harbor pier", Time: "dawn", ReferenceImage: strPtr("ref://pier")},
			{ID: "alley", Location: "back alley", Time: "night"}, // no reference image
		},
	}
}

func TestResolveReferencesOrderAndFallback(t *testing.T) {
	sd := testScriptData()
	shot := &models.Shot{
		ID:           "shot-1",
		SceneID:      "pier",
		CharacterIDs: []string{"mara", "yusuf"},
		SelectedVariations: map[string]string{
			"mara": "mara-raincoat",
		},
	}

	got := ResolveReferences(shot, sd)
	want := []string{"ref://pier", "ref://mara-raincoat", "ref://yusuf-base"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveReferences = %v, want %v", got, want)
	}
}

func TestResolveReferencesVariationWithoutImageFallsBack(t *testing.T) {
	sd := testScriptData()
	shot := &models.Shot{
		ID:           "shot-1",
		SceneID:      "alley",
		CharacterIDs: []string{"mara"},
		SelectedVariations: map[string]string{
			"mara": "mara-injured",
		},
	}

	got := ResolveReferences(shot, sd)
	want := []string{"ref://mara-base"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("variation without image must fall back to base reference, got %v", got)
	}
}

func TestResolveReferencesSkipsUnresolvable(t *testing.T) {
	sd := testScriptData()
	shot := &models.Shot{
		ID:           "shot-1",
		SceneID:      "alley", // scene has no reference image
		CharacterIDs: []string{"stranger", "ghost", "yusuf"},
	}

	got := ResolveReferences(shot, sd)
	want := []string{"ref://yusuf-base"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("characters without references must be skipped, got %v", got)
	}
}

func TestResolveReferencesNilScriptData(t *testing.T) {
	shot := &models.Shot{ID: "shot-1", SceneID: "pier", CharacterIDs: []string{"mara"}}
	if got := ResolveReferences(shot, nil); got != nil {
		t.Errorf("nil script data must resolve to nil, got %v", got)
	}
}

func TestShotCharactersPreservesOrder(t *testing.T) {
	sd := testScriptData()
	shot := &models.Shot{CharacterIDs: []string{"yusuf", "ghost", "mara"}}

	got := ShotCharacters(shot, sd)
	if len(got) != 2 || got[0].ID != "yusuf" || got[1].ID != "mara" {
		t.Errorf("ShotCharacters order wrong: %+v", got)
	}
}
