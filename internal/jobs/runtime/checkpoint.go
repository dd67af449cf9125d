package runtime

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// Checkpoint is what Job.Checkpoint holds: the steps already done and the
// state the last of them produced.
type Checkpoint struct {
	Completed []string        `json:"completed"`
	State     json.RawMessage `json:"state,omitempty"`
}

// DecodeCheckpoint treats an empty or unreadable column as a fresh start.
func DecodeCheckpoint(raw datatypes.JSON) Checkpoint {
	var cp Checkpoint
	if len(raw) == 0 {
		return cp
	}
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}
	}
	return cp
}

func (cp Checkpoint) Encode() datatypes.JSON {
	if cp.Completed == nil {
		cp.Completed = []string{}
	}
	b, _ := json.Marshal(cp)
	return datatypes.JSON(b)
}

func (cp Checkpoint) Done(step string) bool {
	for _, s := range cp.Completed {
		if s == step {
			return true
		}
	}
	return false
}
