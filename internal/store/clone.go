package store

import (
	"encoding/json"

	"github.com/velvela/shotcraft/internal/models"
)

// clone deep-copies a project through its JSON form. Snapshots handed out by
// the store must never alias the stored state, or callers could mutate shots
// outside an UpdateShot transaction. Projects are small (tens of shots), so
// the round-trip cost is irrelevant next to any generation call.
func clone(p *models.Project) *models.Project {
	data, err := json.Marshal(p)
	if err != nil {
		// Project contains only JSON-serializable fields; this cannot fail
		// unless the model gains a non-serializable member.
		panic("store: project not serializable: " + err.Error())
	}
	var out models.Project
	if err := json.Unmarshal(data, &out); err != nil {
		panic("store: project not deserializable: " + err.Error())
	}
	return &out
}
