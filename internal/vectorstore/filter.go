package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/docsd/internal/processor"
)

// Filter restricts search and delete operations by chunk metadata.
//
// Keys are metadata field names: version, path, product, framework, type,
// heading, tags, chunkIndex, totalChunks. A string value requires equality
// (for tags: membership), a []string value matches when any element matches,
// an int value requires equality on the numeric fields. Conditions on
// different keys are ANDed.
type Filter map[string]any

// Validate checks that every key names a known field and every value has a
// supported type.
func (f Filter) Validate() error {
	for key, value := range f {
		switch key {
		case "version", "path", "product", "framework", "type", "heading", "tags":
			switch value.(type) {
			case string, []string:
			default:
				return fmt.Errorf("%w: field %q requires a string or []string, got %T", ErrInvalidFilter, key, value)
			}
		case "chunkIndex", "totalChunks":
			if _, ok := value.(int); !ok {
				return fmt.Errorf("%w: field %q requires an int, got %T", ErrInvalidFilter, key, value)
			}
		default:
			return fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, key)
		}
	}
	return nil
}

// Matches reports whether the metadata satisfies every filter condition.
func (f Filter) Matches(meta processor.ChunkMetadata) bool {
	for key, value := range f {
		if !matchesField(meta, key, value) {
			return false
		}
	}
	return true
}

func matchesField(meta processor.ChunkMetadata, key string, value any) bool {
	switch key {
	case "tags":
		return matchesTags(meta.Tags, value)
	case "chunkIndex":
		n, ok := value.(int)
		return ok && meta.ChunkIndex == n
	case "totalChunks":
		n, ok := value.(int)
		return ok && meta.TotalChunks == n
	}

	var field string
	switch key {
	case "version":
		field = meta.Version
	case "path":
		field = meta.DocumentPath
	case "product":
		field = meta.Product
	case "framework":
		field = meta.Framework
	case "type":
		field = meta.Type
	case "heading":
		field = meta.Heading
	default:
		return false
	}

	switch v := value.(type) {
	case string:
		return field == v
	case []string:
		for _, candidate := range v {
			if field == candidate {
				return true
			}
		}
		return false
	}
	return false
}

func matchesTags(tags []string, value any) bool {
	has := func(tag string) bool {
		for _, t := range tags {
			if t == tag {
				return true
			}
		}
		return false
	}

	switch v := value.(type) {
	case string:
		return has(v)
	case []string:
		for _, tag := range v {
			if has(tag) {
				return true
			}
		}
		return false
	}
	return false
}

// stringValues returns the scalar string entries of the filter, used by
// backends that can push exact-match conditions down natively.
func (f Filter) stringValues() map[string]string {
	out := make(map[string]string)
	for key, value := range f {
		if key == "tags" {
			continue
		}
		if s, ok := value.(string); ok {
			out[key] = s
		}
	}
	return out
}
