package blocks

import (
	"encoding/json"
	"strings"
)

// Decode parses a persisted block list and attaches a rendered element to
// every block. It reports false when the input does not parse or decodes to
// nothing, so callers can open an empty editor instead of failing.
// Component names and attribute keys are not validated here.
func Decode(s string) ([]Block, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var list []Block
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil, false
	}
	if list == nil {
		return nil, false
	}
	for i := range list {
		if list[i].Attributes == nil {
			list[i].Attributes = Attributes{}
		}
		list[i].Element = Render(list[i].ComponentName, list[i].Attributes)
	}
	return list, true
}

// Encode serialises blocks for persistence. Rendered elements are dropped.
func Encode(list []Block) (string, error) {
	if list == nil {
		list = []Block{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeGlobalStyles parses persisted global styles. Same falsy rules as Decode.
func DecodeGlobalStyles(s string) (GlobalStyles, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var attrs Attributes
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, false
	}
	if attrs == nil {
		return nil, false
	}
	return GlobalStyles(attrs), true
}

func EncodeGlobalStyles(g GlobalStyles) (string, error) {
	if g == nil {
		g = GlobalStyles{}
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
