package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/AltairaLabs/gesture-relay/internal/gesture"
)

//go:embed schema/command.schema.json
var commandSchema []byte

const commandSchemaURL = "command.schema.json"

// Command is a client command. Only fields meaningful for Type are set.
// Data carries the gesture record on worker-bound gesture commands.
type Command struct {
	Type                CommandType     `json:"type"`
	ID                  string          `json:"id,omitempty"`
	Name                *string         `json:"name,omitempty"`
	Icon                *string         `json:"icon,omitempty"`
	Action              *string         `json:"action,omitempty"`
	CursorAction        *string         `json:"cursorAction,omitempty"`
	Active              *bool           `json:"active,omitempty"`
	Enabled             *bool           `json:"enabled,omitempty"`
	Total               *int            `json:"total,omitempty"`
	ConfidenceThreshold *float64        `json:"confidenceThreshold,omitempty"`
	Cooldown            *float64        `json:"cooldown,omitempty"`
	BufferSize          *int            `json:"bufferSize,omitempty"`
	Settings            json.RawMessage `json:"settings,omitempty"`
	Data                *gesture.Record `json:"data,omitempty"`
}

// Draft returns the gesture draft carried by an add_gesture command
func (c Command) Draft() gesture.Draft {
	return gesture.Draft{
		Name:         deref(c.Name),
		Icon:         deref(c.Icon),
		Action:       deref(c.Action),
		CursorAction: deref(c.CursorAction),
	}
}

// Patch returns the gesture patch carried by an update_gesture command
func (c Command) Patch() gesture.Patch {
	return gesture.Patch{Name: c.Name, Icon: c.Icon, Action: c.Action, CursorAction: c.CursorAction}
}

// TotalOr returns the requested recording total or def
func (c Command) TotalOr(def int) int {
	if c.Total == nil {
		return def
	}
	return *c.Total
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Validator checks commands against the embedded command schema
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the command schema
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(commandSchemaURL, bytes.NewReader(commandSchema)); err != nil {
		return nil, fmt.Errorf("add command schema: %w", err)
	}
	schema, err := compiler.Compile(commandSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile command schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustNewValidator is NewValidator for package-level initialization
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// DecodeCommand parses and validates a raw client frame. It returns an error
// wrapping ErrMalformedMessage for non-JSON input and gesture.ErrValidation
// for schema violations.
func (v *Validator) DecodeCommand(raw []byte) (Command, error) {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if _, ok := instance.(map[string]any); !ok {
		return Command{}, fmt.Errorf("%w: expected a JSON object", ErrMalformedMessage)
	}
	if err := v.validate(instance); err != nil {
		return Command{}, err
	}

	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	cmd.Data = nil
	return cmd, nil
}

// Validate checks an already-built command, such as one assembled from a REST request
func (v *Validator) Validate(cmd Command) error {
	cmd.Data = nil
	raw, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return v.validate(instance)
}

func (v *Validator) validate(instance any) error {
	err := v.schema.Validate(instance)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%w: %s", gesture.ErrValidation, describe(ve))
	}
	return fmt.Errorf("%w: %v", gesture.ErrValidation, err)
}

// describe reduces a validation error tree to its leaf messages
func describe(ve *jsonschema.ValidationError) string {
	var leaves []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc == "" {
				leaves = append(leaves, e.Message)
			} else {
				leaves = append(leaves, loc+": "+e.Message)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(leaves, "; ")
}

// Encode marshals a message for the wire
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// AddGestureCommand builds the worker command that registers a gesture.
// It is used both for creation and for resync after reconnect.
func AddGestureCommand(r gesture.Record) Command {
	return Command{Type: CmdAddGesture, ID: r.ID, Data: &r}
}

// UpdateGestureCommand builds the worker command carrying an updated record
func UpdateGestureCommand(r gesture.Record) Command {
	return Command{Type: CmdUpdateGesture, ID: r.ID, Data: &r}
}

// DeleteGestureCommand builds the worker command removing a gesture
func DeleteGestureCommand(id string) Command {
	return Command{Type: CmdDeleteGesture, ID: id}
}

// ToggleGestureCommand builds the worker command carrying the new active flag
func ToggleGestureCommand(id string, active bool) Command {
	return Command{Type: CmdToggleGesture, ID: id, Active: &active}
}

// StartRecordingCommand builds the worker command that starts sampling a gesture
func StartRecordingCommand(id string, total int) Command {
	return Command{Type: CmdStartRecording, ID: id, Total: &total}
}

// SimpleCommand builds a command with no fields besides its type
func SimpleCommand(t CommandType) Command {
	return Command{Type: t}
}
