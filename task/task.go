package task

import (
	"cineshorts/scene"
)

type Status string

const (
	StatusStarting  Status = "starting"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further mutation will happen to a task in this
// status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Task is one in-flight or recently finished analysis job. Progress is an
// advisory 0..100 estimate, non-decreasing except for the single reset to 0
// that accompanies an error; only Status signals completion.
type Task struct {
	ID       string        `json:"task_id"`
	Status   Status        `json:"status"`
	Progress int           `json:"progress"`
	Message  string        `json:"message,omitempty"`
	Result   *scene.Result `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
}
