package model

import (
	"fmt"
	"sort"
	"strings"
)

// FlattenContent accepts a string (returned verbatim) or an ordered slice
// of content blocks (each a map[string]any, as decoded from JSON), and
// joins the extractable text with "\n". Recognized block shapes:
//
//	{"type": "text"|"input_text", "text": "..."}      -> the text verbatim
//	{"type": "tool_use", "name": "...", "input": {...}} -> "[Tool: NAME]" or
//	                                                        "[Tool: NAME - DESC]"
//	{"type": "thinking", "thinking": "..."}            -> "[Thinking] TEXT"
//	{"type": "toolCall", "name": "...", "arguments": {...}} -> "[Tool: NAME] k=v, ..."
//
// "image" blocks and unrecognized types are skipped. An unextractable
// value (nil, object, number) flattens to "".
func FlattenContent(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var parts []string
		for _, item := range t {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if part, ok := flattenBlock(block); ok {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

func flattenBlock(block map[string]any) (string, bool) {
	blockType, _ := block["type"].(string)

	switch blockType {
	case "text", "input_text", "":
		if text, ok := block["text"].(string); ok {
			return text, true
		}
		return "", false

	case "tool_use":
		name, _ := block["name"].(string)
		if name == "" {
			name = "unknown"
		}
		desc := toolUseDescription(block)
		if desc == "" {
			return fmt.Sprintf("[Tool: %s]", name), true
		}
		return fmt.Sprintf("[Tool: %s - %s]", name, desc), true

	case "thinking":
		if text, ok := block["thinking"].(string); ok {
			return "[Thinking] " + text, true
		}
		if text, ok := block["text"].(string); ok {
			return "[Thinking] " + text, true
		}
		return "", false

	case "toolCall":
		name, _ := block["name"].(string)
		if name == "" {
			name = "unknown"
		}
		args := toolCallArgs(block)
		if args == "" {
			return fmt.Sprintf("[Tool: %s]", name), true
		}
		return fmt.Sprintf("[Tool: %s] %s", name, args), true

	case "image":
		return "", false

	default:
		return "", false
	}
}

func toolUseDescription(block map[string]any) string {
	input, _ := block["input"].(map[string]any)
	if input == nil {
		return ""
	}
	if desc, ok := input["description"].(string); ok && desc != "" {
		return desc
	}
	if path, ok := input["file_path"].(string); ok && path != "" {
		return path
	}
	return ""
}

func toolCallArgs(block map[string]any) string {
	args, _ := block["arguments"].(map[string]any)
	if args == nil {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k, v := range args {
		if _, ok := v.(string); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > 3 {
		keys = keys[:3]
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, args[k].(string))
	}
	return strings.Join(parts, ", ")
}
