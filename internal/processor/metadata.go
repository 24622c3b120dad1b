package processor

import "strings"

// Default token sets for path-based metadata derivation.
var (
	defaultProducts   = []string{"grid", "scheduler", "gantt", "calendar", "taskboard", "core"}
	defaultFrameworks = []string{"react", "angular", "vue", "vanilla", "ionic", "svelte"}
)

// typeBySegment maps path-segment keywords to document types.
var typeBySegment = map[string]string{
	"guides":   "guide",
	"api":      "api",
	"examples": "example",
	"concepts": "concept",
}

const (
	defaultProduct   = "core"
	defaultFramework = "vanilla"
	defaultType      = "guide"
)

// extractMetadata derives structural metadata from a document path. It is
// deterministic and total: every field always gets a value.
func extractMetadata(path string, cfg Config) ChunkMetadata {
	segments := pathSegments(path)

	return ChunkMetadata{
		DocumentPath: path,
		Tags:         extractTags(segments, cfg.IncludeRootSegment),
		Product:      firstMatch(segments, cfg.KnownProducts, defaultProduct),
		Framework:    firstMatch(segments, cfg.KnownFrameworks, defaultFramework),
		Type:         extractType(segments),
	}
}

// pathSegments returns the directory segments of a slash-separated path,
// excluding the filename.
func pathSegments(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) <= 1 {
		return nil
	}
	segments := make([]string, 0, len(parts)-1)
	for _, seg := range parts[:len(parts)-1] {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// extractTags turns path segments into an ordered, de-duplicated tag list.
func extractTags(segments []string, includeRoot bool) []string {
	if !includeRoot && len(segments) > 0 {
		segments = segments[1:]
	}

	seen := make(map[string]bool, len(segments))
	tags := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seen[seg] {
			continue
		}
		seen[seg] = true
		tags = append(tags, seg)
	}
	return tags
}

// firstMatch returns the first segment present in the known token set, or
// the fallback.
func firstMatch(segments, known []string, fallback string) string {
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[strings.ToLower(k)] = true
	}
	for _, seg := range segments {
		if knownSet[strings.ToLower(seg)] {
			return strings.ToLower(seg)
		}
	}
	return fallback
}

// extractType maps the first recognized path-segment keyword to a document
// type.
func extractType(segments []string) string {
	for _, seg := range segments {
		if t, ok := typeBySegment[strings.ToLower(seg)]; ok {
			return t
		}
	}
	return defaultType
}
