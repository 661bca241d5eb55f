package document

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Value is a keyframe value: a number for interpolated properties or a
// string (a color) for stepped ones.
type Value struct {
	Num      float64
	Str      string
	IsString bool
}

// NumberValue returns a numeric value.
func NumberValue(v float64) Value { return Value{Num: v} }

// StringValue returns a string value.
func StringValue(s string) Value { return Value{Str: s, IsString: true} }

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsString {
		return json.Marshal(v.Str)
	}
	return json.Marshal(v.Num)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = StringValue(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("keyframe value must be a number or a string: %w", err)
	}
	*v = NumberValue(f)
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	if v.IsString {
		return v.Str, nil
	}
	return v.Num, nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: keyframe value must be a scalar", node.Line)
	}
	if tag := node.ShortTag(); tag == "!!int" || tag == "!!float" {
		f, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return fmt.Errorf("line %d: parse keyframe value: %w", node.Line, err)
		}
		*v = NumberValue(f)
		return nil
	}
	*v = StringValue(node.Value)
	return nil
}
