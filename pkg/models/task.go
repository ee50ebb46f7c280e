package models

import "encoding/json"

// Task is a single unit of work within a workflow. The (Action, Mode) pair
// selects a capability implementation; every other key the parser produced
// lands in Fields and is handed to the capability as invocation arguments.
type Task struct {
	Action string         `json:"action"`
	Mode   string         `json:"mode"`
	Fields map[string]any `json:"-"`
}

// Field returns the named argument as a string, or "" when absent or null.
func (t Task) Field(name string) string {
	v, ok := t.Fields[name]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return s
}

// Tasks round-trip as flat JSON objects, the shape the intent parser emits:
// {"action": "email", "mode": "send", "recipient": "a@b.com", ...}.

func (t Task) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(t.Fields)+2)
	for k, v := range t.Fields {
		flat[k] = v
	}
	flat["action"] = t.Action
	flat["mode"] = t.Mode
	return json.Marshal(flat)
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if v, ok := flat["action"].(string); ok {
		t.Action = v
	}
	if v, ok := flat["mode"].(string); ok {
		t.Mode = v
	}
	delete(flat, "action")
	delete(flat, "mode")
	t.Fields = flat
	return nil
}
