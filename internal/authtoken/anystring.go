package authtoken

import (
	"encoding/json"
	"strings"
)

// anyString decodes a JSON value that may be a bare string, a
// comma-separated string, or an array of strings — the three shapes
// spec.md allows for the role/roles claims.
type anyString []string

func (a *anyString) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = []string{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*a = list
		return nil
	}

	*a = nil
	return nil
}

func (a anyString) MarshalJSON() ([]byte, error) {
	if len(a) == 1 {
		return json.Marshal(a[0])
	}
	return json.Marshal([]string(a))
}

// values expands each stored entry, splitting any comma-separated entry
// (the single-string-claim case) into individual role names.
func (a anyString) values() []string {
	out := make([]string, 0, len(a))
	for _, entry := range a {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
