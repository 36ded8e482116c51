package pipeline

import (
	"github.com/velvela/shotcraft/internal/models"
)

// ResolveReferences produces the ordered conditioning-image list for a shot's
// image generation call. Order is fixed and matters to the model's
// interpretation: the scene reference comes first to anchor the environment,
// then each of the shot's characters in shot order, using the selected
// variation's reference when one exists and falling back to the character's
// base reference otherwise. Characters with neither are skipped. No
// de-duplication is performed. Returns nil when scriptData is absent.
func ResolveReferences(shot *models.Shot, scriptData *models.ScriptData) []string {
	if scriptData == nil {
		return nil
	}

	var refs []string

	if scene := scriptData.SceneByID(shot.SceneID); scene != nil && scene.ReferenceImage != nil && *scene.ReferenceImage != "" {
		refs = append(refs, *scene.ReferenceImage)
	}

	for _, characterID := range shot.CharacterIDs {
		character := scriptData.CharacterByID(characterID)
		if character == nil {
			continue
		}

		if url := selectedVariationImage(shot, character); url != "" {
			refs = append(refs, url)
			continue
		}

		if character.ReferenceImage != nil && *character.ReferenceImage != "" {
			refs = append(refs, *character.ReferenceImage)
		}
	}

	return refs
}

// selectedVariationImage returns the reference image of the shot's selected
// variation for the character, or "" when no usable variation is selected.
func selectedVariationImage(shot *models.Shot, character *models.Character) string {
	variationID, ok := shot.SelectedVariations[character.ID]
	if !ok {
		return ""
	}
	for _, v := range character.Variations {
		if v.ID == variationID && v.ReferenceImage != nil && *v.ReferenceImage != "" {
			return *v.ReferenceImage
		}
	}
	return ""
}

// ShotCharacters returns the shot's characters in shot order, skipping ids
// that no longer resolve against the script data.
func ShotCharacters(shot *models.Shot, scriptData *models.ScriptData) []models.Character {
	if scriptData == nil {
		return nil
	}
	out := make([]models.Character, 0, len(shot.CharacterIDs))
	for _, id := range shot.CharacterIDs {
		if c := scriptData.CharacterByID(id); c != nil {
			out = append(out, *c)
		}
	}
	return out
}
