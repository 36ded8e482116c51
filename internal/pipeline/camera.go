package pipeline

import (
	"strings"

	"github.com/velvela/shotcraft/internal/models"
)

// movementGuide maps a camera movement to the composition instructions for
// the shot's two keyframes. Start and end describe complementary framings so
// the generated transition reads as the named movement.
type movementGuide struct {
	start string
	end   string
}

var movementGuides = map[models.CameraMovement]movementGuide{
	models.CameraStatic: {
		start: "balanced, centered composition with the subject at rest",
		end:   "the same composition held, only the subject's pose or expression slightly evolved",
	},
	models.CameraPanLeft: {
		start: "subject positioned on the right third, open negative space on the left",
		end:   "subject shifted to the left third, the former negative space now behind them on the right",
	},
	models.CameraPanRight: {
		start: "subject positioned on the left third, open negative space on the right",
		end:   "subject shifted to the right third, the former negative space now behind them on the left",
	},
	models.CameraTiltUp: {
		start: "framing favors the lower part of the scene, subject's base or ground detail prominent",
		end:   "framing favors the upper part of the scene, sky or ceiling now dominating above the subject",
	},
	models.CameraTiltDown: {
		start: "framing favors the upper part of the scene, sky or overhead detail prominent",
		end:   "framing favors the lower part of the scene, ground plane and subject's base now dominating",
	},
	models.CameraZoomIn: {
		start: "wide framing, subject small within a fully visible environment",
		end:   "tight framing on the subject, environment cropped to a shallow border",
	},
	models.CameraZoomOut: {
		start: "tight framing on the subject, little environment visible",
		end:   "wide framing, the subject now small within the fully revealed environment",
	},
	models.CameraDollyIn: {
		start: "camera at a distance, subject seen past foreground elements that frame the shot",
		end:   "camera close to the subject, former foreground elements now out of frame, depth compressed",
	},
	models.CameraDollyOut: {
		start: "camera close to the subject, depth compressed, no foreground framing",
		end:   "camera withdrawn, new foreground elements entering frame around the smaller subject",
	},
	models.CameraTracking: {
		start: "subject mid-motion at one side of frame, motion path stretching ahead of them",
		end:   "subject still mid-motion, background landmarks visibly progressed along the motion path",
	},
	models.CameraOrbit: {
		start: "subject seen from a three-quarter front angle",
		end:   "subject seen from the opposite three-quarter angle, background rotated behind them",
	},
	models.CameraHandheld: {
		start: "slightly off-axis, imperfect framing with the subject near center",
		end:   "framing drifted a few degrees, horizon subtly tilted the other way",
	},
}

var genericGuide = movementGuide{
	start: "clear establishing composition with the subject prominent",
	end:   "a naturally progressed composition of the same scene moments later",
}

// CameraGuide returns the composition instruction for a movement and frame
// role. Movement strings match case-insensitively; unknown movements get the
// generic instruction. Total — never fails, never returns empty.
func CameraGuide(movement models.CameraMovement, role models.FrameRole) string {
	normalized := models.CameraMovement(strings.ToLower(strings.TrimSpace(string(movement))))
	guide, ok := movementGuides[normalized]
	if !ok {
		guide = genericGuide
	}
	if role == models.FrameRoleEnd {
		return guide.end
	}
	return guide.start
}
