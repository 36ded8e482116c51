package pipeline

import (
	"testing"

	"github.com/velvela/shotcraft/internal/models"
)

var allMovements = []models.CameraMovement{
	models.CameraStatic,
	models.CameraPanLeft,
	models.CameraPanRight,
	models.CameraTiltUp,
	models.CameraTiltDown,
	models.CameraZoomIn,
	models.CameraZoomOut,
	models.CameraDollyIn,
	models.CameraDollyOut,
	models.CameraTracking,
	models.CameraOrbit,
	models.CameraHandheld,
}

func TestCameraGuideCoversAllMovements(t *testing.T) {
	for _, movement := range allMovements {
		for _, role := range []models.FrameRole{models.FrameRoleStart, models.FrameRoleEnd} {
			if guide := CameraGuide(movement, role); guide == "" {
				t.Errorf("empty guide for %s/%s", movement, role)
			}
		}
	}
}

func TestCameraGuideStartEndComplementary(t *testing.T) {
	for _, movement := range allMovements {
		start := CameraGuide(movement, models.FrameRoleStart)
		end := CameraGuide(movement, models.FrameRoleEnd)
		if start == end {
			t.Errorf("%s: start and end guides are identical", movement)
		}
	}
}

func TestCameraGuideCaseInsensitive(t *testing.T) {
	want := CameraGuide(models.CameraPanLeft, models.FrameRoleStart)
	got := CameraGuide(models.CameraMovement("  Pan_Left "), models.FrameRoleStart)
	if got != want {
		t.Errorf("case-insensitive lookup failed: got %q, want %q", got, want)
	}
}

func TestCameraGuideUnknownMovement(t *testing.T) {
	got := CameraGuide(models.CameraMovement("drone_flyover"), models.FrameRoleEnd)
	if got != genericGuide.end {
		t.Errorf("unknown movement should get the generic guide, got %q", got)
	}
}
