package document

import (
	"encoding/json"
	"fmt"
)

// Parse decodes editor JSON into a Node. Only syntactically invalid JSON is
// an error; structurally odd input (wrong field types, unknown node types)
// is kept as far as it can be read.
func Parse(raw []byte) (Node, error) {
	if len(raw) == 0 {
		return Node{Type: TypeDoc}, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Node{}, fmt.Errorf("decode document: %w", err)
	}
	return FromAny(decoded), nil
}

// FromAny converts an already-unmarshalled JSON value into a Node.
func FromAny(value any) Node {
	root, ok := value.(map[string]any)
	if !ok {
		return Node{Type: TypeDoc}
	}
	return nodeFromMap(root)
}

func nodeFromMap(raw map[string]any) Node {
	node := Node{}
	node.Type, _ = raw["type"].(string)
	node.Text, _ = raw["text"].(string)
	if attrs, ok := raw["attrs"].(map[string]any); ok {
		node.Attrs = attrs
	}
	if items, ok := raw["content"].([]any); ok {
		node.Content = make([]Node, 0, len(items))
		for _, item := range items {
			child, ok := item.(map[string]any)
			if !ok {
				continue
			}
			node.Content = append(node.Content, nodeFromMap(child))
		}
	}
	if items, ok := raw["marks"].([]any); ok {
		for _, item := range items {
			markMap, ok := item.(map[string]any)
			if !ok {
				continue
			}
			mark := Mark{}
			mark.Type, _ = markMap["type"].(string)
			if attrs, ok := markMap["attrs"].(map[string]any); ok {
				mark.Attrs = attrs
			}
			if mark.Type == "" {
				continue
			}
			node.Marks = append(node.Marks, mark)
		}
	}
	return node
}
