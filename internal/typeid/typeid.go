// Package typeid issues the prefixed, time-sortable IDs of stored entities
// and scene nodes.
package typeid

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the kind of entity an ID belongs to.
type Prefix string

const (
	User     Prefix = "user"
	Scene    Prefix = "scene"
	Node     Prefix = "node"
	Snapshot Prefix = "snap"
	Op       Prefix = "op"
	Timeline Prefix = "tl"
	Track    Prefix = "track"
	Keyframe Prefix = "kf"
	Asset    Prefix = "asset"
)

// New returns a fresh ID such as "node_01h455vb4pex5vsknk084sn02q".
func (p Prefix) New() string {
	return typeid.MustGenerate(string(p)).String()
}

// Validate checks that id parses as a typeid carrying p.
func (p Prefix) Validate(id string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid %s id %q: %w", p, id, err)
	}
	if got := Prefix(parsed.Prefix()); got != p {
		return fmt.Errorf("id %q has prefix %q, want %q", id, got, p)
	}
	return nil
}
