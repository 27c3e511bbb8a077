package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

func scanJSON(src any, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("cannot scan %T as json", src)
	}
}

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Attachments is persisted as a JSON array; it is never null.
type Attachments []Attachment

func (a Attachments) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Attachment(a))
}

func (a *Attachments) Scan(src any) error {
	var out []Attachment
	if err := scanJSON(src, &out); err != nil {
		return fmt.Errorf("scan attachments: %w", err)
	}
	if out == nil {
		out = []Attachment{}
	}
	*a = out
	return nil
}

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return jsonValue([]Attachment(a))
}

// ContactPreferences is a set of contact methods persisted as a JSON array in
// first-seen order.
type ContactPreferences []ContactMethod

// NewContactPreferences parses raw values into a de-duplicated set.
func NewContactPreferences(raw []string) (ContactPreferences, error) {
	out := ContactPreferences{}
	for _, r := range raw {
		m, err := ParseContactMethod(strings.TrimSpace(r))
		if err != nil {
			return nil, err
		}
		if !out.Has(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c ContactPreferences) Has(m ContactMethod) bool {
	for _, v := range c {
		if v == m {
			return true
		}
	}
	return false
}

func (c ContactPreferences) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]ContactMethod(c))
}

func (c *ContactPreferences) Scan(src any) error {
	var out []ContactMethod
	if err := scanJSON(src, &out); err != nil {
		return fmt.Errorf("scan contact preference: %w", err)
	}
	if out == nil {
		out = []ContactMethod{}
	}
	*c = out
	return nil
}

func (c ContactPreferences) Value() (driver.Value, error) {
	if c == nil {
		return "[]", nil
	}
	return jsonValue([]ContactMethod(c))
}

// StringSet is a set of free-form labels persisted as a JSON array.
type StringSet []string

func NewStringSet(raw []string) StringSet {
	out := StringSet{}
	seen := map[string]struct{}{}
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

func (s *StringSet) Scan(src any) error {
	var out []string
	if err := scanJSON(src, &out); err != nil {
		return fmt.Errorf("scan string set: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*s = out
	return nil
}

func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return jsonValue([]string(s))
}

// ChatMetadata is the typed metadata column of a chat log row.
type ChatMetadata struct {
	PushName      string            `json:"push_name,omitempty"`
	MessageType   string            `json:"message_type,omitempty"`
	RoutingSource string            `json:"routing_source,omitempty"`
	Error         string            `json:"error,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

func (m *ChatMetadata) Scan(src any) error {
	*m = ChatMetadata{}
	if err := scanJSON(src, m); err != nil {
		return fmt.Errorf("scan chat metadata: %w", err)
	}
	return nil
}

func (m ChatMetadata) Value() (driver.Value, error) {
	return jsonValue(m)
}
