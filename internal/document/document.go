// Package document parses seed documents into ordered record groups.
//
// Two encodings are accepted: a mapping of type name to data block(s), and a
// list of {type, data} groups. YAML mappings preserve author order; JSON
// object keys carry no order, so the mapping form sorts group keys and the
// list form is the ordered JSON encoding.
//
// Reserved top-level meta keys: "!version" (format version), "!models"
// (registry targets to register before processing), "!files" (documents to
// merge in, for the file-based variant).
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/loamlabs/seedr/internal/record"
)

// Reserved top-level meta keys.
const (
	VersionKey = "!version"
	ModelsKey  = "!models"
	FilesKey   = "!files"
)

// DefaultVersion is assumed when a document carries no version tag.
const DefaultVersion = 1

// Document is one parsed seed document.
type Document struct {
	// Version is the document format version.
	Version int

	// Models lists type-registration targets to register before resolving.
	Models []string

	// Files lists further documents to merge in, relative to this one.
	Files []string

	// Groups are the record groups in document order.
	Groups []record.Group
}

// Parse decodes a YAML seed document, validates its shape, and returns it
// with groups in author order.
func Parse(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, &ValidationError{Message: "empty document"}
	}

	body := root.Content[0]
	switch body.Kind {
	case yaml.MappingNode:
		return parseMappingNode(body)
	case yaml.SequenceNode:
		return parseGroupListNode(body)
	default:
		return nil, &ValidationError{Message: "document root must be a mapping or a list of groups"}
	}
}

// ParseJSON decodes a JSON seed document. The mapping form sorts group keys
// for determinism; use the list form when group order matters.
func ParseJSON(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	normalized, err := record.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if err := Validate(normalized); err != nil {
		return nil, err
	}

	switch body := normalized.(type) {
	case map[string]any:
		return parseMappingValue(body)
	case []any:
		return parseGroupListValue(body)
	default:
		return nil, &ValidationError{Message: "document root must be a mapping or a list of groups"}
	}
}

// parseMappingNode walks a YAML mapping in author order, splitting meta keys
// from record groups.
func parseMappingNode(body *yaml.Node) (*Document, error) {
	doc := &Document{Version: DefaultVersion}

	for i := 0; i+1 < len(body.Content); i += 2 {
		keyNode, valueNode := body.Content[i], body.Content[i+1]
		key := keyNode.Value

		switch key {
		case VersionKey:
			if err := valueNode.Decode(&doc.Version); err != nil {
				return nil, fmt.Errorf("decode %s: %w", VersionKey, err)
			}
		case ModelsKey:
			if err := valueNode.Decode(&doc.Models); err != nil {
				return nil, fmt.Errorf("decode %s: %w", ModelsKey, err)
			}
		case FilesKey:
			if err := valueNode.Decode(&doc.Files); err != nil {
				return nil, fmt.Errorf("decode %s: %w", FilesKey, err)
			}
		default:
			blocks, err := decodeBlocksNode(valueNode)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", key, err)
			}
			doc.Groups = append(doc.Groups, record.Group{TypeName: key, Blocks: blocks})
		}
	}

	return doc, nil
}

// parseGroupListNode walks a YAML list of {type, data} groups.
func parseGroupListNode(body *yaml.Node) (*Document, error) {
	doc := &Document{Version: DefaultVersion}

	for i, item := range body.Content {
		var entry struct {
			Type string    `yaml:"type"`
			Data yaml.Node `yaml:"data"`
		}
		if err := item.Decode(&entry); err != nil {
			return nil, fmt.Errorf("group[%d]: %w", i, err)
		}
		blocks, err := decodeBlocksNode(&entry.Data)
		if err != nil {
			return nil, fmt.Errorf("group[%d] (%s): %w", i, entry.Type, err)
		}
		doc.Groups = append(doc.Groups, record.Group{TypeName: entry.Type, Blocks: blocks})
	}

	return doc, nil
}

// decodeBlocksNode decodes a group value node: a single block mapping or a
// sequence of block mappings.
func decodeBlocksNode(node *yaml.Node) ([]map[string]any, error) {
	switch node.Kind {
	case yaml.MappingNode:
		var block map[string]any
		if err := node.Decode(&block); err != nil {
			return nil, err
		}
		norm, err := record.NormalizeMap(block)
		if err != nil {
			return nil, err
		}
		return []map[string]any{norm}, nil
	case yaml.SequenceNode:
		var blocks []map[string]any
		if err := node.Decode(&blocks); err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(blocks))
		for i, block := range blocks {
			norm, err := record.NormalizeMap(block)
			if err != nil {
				return nil, fmt.Errorf("block[%d]: %w", i, err)
			}
			out[i] = norm
		}
		return out, nil
	default:
		return nil, fmt.Errorf("data must be a block or a list of blocks")
	}
}

// parseMappingValue builds groups from an already-normalized JSON mapping.
func parseMappingValue(body map[string]any) (*Document, error) {
	doc := &Document{Version: DefaultVersion}

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := body[key]
		switch key {
		case VersionKey:
			v, ok := value.(int64)
			if !ok {
				return nil, &ValidationError{Message: fmt.Sprintf("%s must be an integer", VersionKey)}
			}
			doc.Version = int(v)
		case ModelsKey:
			targets, err := stringList(value)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", ModelsKey, err)
			}
			doc.Models = targets
		case FilesKey:
			files, err := stringList(value)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", FilesKey, err)
			}
			doc.Files = files
		default:
			blocks, err := coerceBlocks(value)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", key, err)
			}
			doc.Groups = append(doc.Groups, record.Group{TypeName: key, Blocks: blocks})
		}
	}

	return doc, nil
}

// parseGroupListValue builds groups from an already-normalized JSON list.
func parseGroupListValue(body []any) (*Document, error) {
	doc := &Document{Version: DefaultVersion}

	for i, item := range body {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, &ValidationError{Message: fmt.Sprintf("group[%d] must be a mapping", i)}
		}
		typeName, ok := entry["type"].(string)
		if !ok || typeName == "" {
			return nil, &ValidationError{Message: fmt.Sprintf("group[%d] missing type", i)}
		}
		blocks, err := coerceBlocks(entry["data"])
		if err != nil {
			return nil, fmt.Errorf("group[%d] (%s): %w", i, typeName, err)
		}
		doc.Groups = append(doc.Groups, record.Group{TypeName: typeName, Blocks: blocks})
	}

	return doc, nil
}

func coerceBlocks(value any) ([]map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		out := make([]map[string]any, len(v))
		for i, elem := range v {
			block, ok := elem.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("block[%d] must be a mapping", i)
			}
			out[i] = block
		}
		return out, nil
	default:
		return nil, fmt.Errorf("data must be a block or a list of blocks")
	}
}

func stringList(value any) ([]string, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of strings")
	}
	out := make([]string, len(list))
	for i, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("element %d is not a string", i)
		}
		out[i] = s
	}
	return out, nil
}
