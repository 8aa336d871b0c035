package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrContributors is returned by RequireContributors when the document has
// no contributors list of strings.
var ErrContributors = errors.New("info.json contributors must be a list of strings")

// Info is the parsed info.json shipped with a submission or a dataset.
// Any valid JSON document is accepted and kept verbatim. Contributors is
// filled only when the document is an object whose contributors field is a
// list of strings.
type Info struct {
	Contributors []string
	Raw          json.RawMessage

	fields          map[string]json.RawMessage
	hasContributors bool
}

// ParseInfo decodes info.json. The only requirement is valid JSON.
func ParseInfo(data []byte) (Info, error) {
	data = bytes.TrimSpace(data)
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Info{}, err
	}
	info := Info{Raw: append(json.RawMessage(nil), data...)}
	if _, ok := doc.(map[string]any); !ok {
		return info, nil
	}
	if err := json.Unmarshal(data, &info.fields); err != nil {
		return Info{}, err
	}
	if c, ok := info.fields["contributors"]; ok {
		var names []string
		if json.Unmarshal(c, &names) == nil {
			info.Contributors = names
			info.hasContributors = true
		}
	}
	return info, nil
}

// Field returns a top-level field of an object document.
func (i Info) Field(name string) (json.RawMessage, bool) {
	v, ok := i.fields[name]
	return v, ok
}

// RequireContributors fails with ErrContributors unless the document carried
// a contributors list of strings.
func (i Info) RequireContributors() error {
	if !i.hasContributors {
		return ErrContributors
	}
	return nil
}

// JoinedContributors renders contributors the way metric records carry them.
func (i Info) JoinedContributors() string {
	return strings.Join(i.Contributors, ", ")
}

// MarshalJSON writes the original document back out.
func (i Info) MarshalJSON() ([]byte, error) {
	if len(i.Raw) == 0 {
		return []byte("{}"), nil
	}
	return i.Raw, nil
}
