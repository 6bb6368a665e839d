package gesture

import (
	"fmt"
	"strings"
	"time"
)

// DefaultIcon is used when a gesture is created without an icon
const DefaultIcon = "✋"

// Action tokens with special handling
const (
	ActionNone   = "none"
	ActionCursor = "cursor_action"
)

// CursorActions lists the cursor sub-types a cursor_action gesture may carry
var CursorActions = []string{"left_click", "right_click", "drag", "scroll", "click_select"}

// Record is the durable configuration of one gesture
type Record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Icon         string    `json:"icon"`
	Action       string    `json:"action"`
	CursorAction string    `json:"cursorAction,omitempty"`
	Active       bool      `json:"active"`
	Samples      int       `json:"samples"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Draft carries the fields of a gesture being created
type Draft struct {
	Name         string
	Icon         string
	Action       string
	CursorAction string
}

// Patch carries optional field updates; nil or empty fields are left unchanged
type Patch struct {
	Name         *string
	Icon         *string
	Action       *string
	CursorAction *string
}

// Recording mirrors the worker's sample recording session for one gesture
type Recording struct {
	GestureID string `json:"id"`
	Recorded  int    `json:"recorded"`
	Total     int    `json:"total"`
	Active    bool   `json:"active"`
	// base is the persisted sample count when the recording began
	base int
}

func isCursorAction(s string) bool {
	for _, a := range CursorActions {
		if a == s {
			return true
		}
	}
	return false
}

// validate checks the record invariants that every stored record satisfies
func (r *Record) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(r.Action) == "" {
		return fmt.Errorf("%w: action is required", ErrValidation)
	}
	if r.Action == ActionCursor && !isCursorAction(r.CursorAction) {
		return fmt.Errorf("%w: cursor_action requires cursorAction to be one of %s",
			ErrValidation, strings.Join(CursorActions, ", "))
	}
	if r.Samples < 0 {
		return fmt.Errorf("%w: samples cannot be negative", ErrValidation)
	}
	return nil
}

func nonEmpty(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	s := strings.TrimSpace(*p)
	return s, s != ""
}

// apply returns a copy of r with the patch applied
func (p Patch) apply(r Record) Record {
	if s, ok := nonEmpty(p.Name); ok {
		r.Name = s
	}
	if s, ok := nonEmpty(p.Icon); ok {
		r.Icon = s
	}
	if s, ok := nonEmpty(p.Action); ok {
		r.Action = s
	}
	if s, ok := nonEmpty(p.CursorAction); ok {
		r.CursorAction = s
	}
	if r.Action != ActionCursor {
		r.CursorAction = ""
	}
	return r
}
