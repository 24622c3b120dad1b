package vectorstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/docsd/internal/processor"
)

// chunkIndexFile is the sidecar filename inside the chromem storage
// directory.
const chunkIndexFile = "chunkindex.json"

// chunkIndex is a persisted id-to-metadata map maintained alongside the
// chromem database. chromem cannot enumerate documents, so version listings,
// per-document lookups, and filtered deletes resolve IDs here first.
type chunkIndex struct {
	mu      sync.Mutex
	path    string
	entries map[string]processor.ChunkMetadata
}

// openChunkIndex loads the sidecar index from dir, starting empty when no
// index file exists yet.
func openChunkIndex(dir string) (*chunkIndex, error) {
	idx := &chunkIndex{
		path:    filepath.Join(dir, chunkIndexFile),
		entries: make(map[string]processor.ChunkMetadata),
	}

	data, err := os.ReadFile(idx.path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading chunk index: %w", err)
	}
	if err := json.Unmarshal(data, &idx.entries); err != nil {
		return nil, fmt.Errorf("parsing chunk index %s: %w", idx.path, err)
	}
	return idx, nil
}

// save writes the index atomically via a temp file rename.
func (idx *chunkIndex) save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.saveLocked()
}

func (idx *chunkIndex) saveLocked() error {
	data, err := json.Marshal(idx.entries)
	if err != nil {
		return fmt.Errorf("encoding chunk index: %w", err)
	}

	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing chunk index: %w", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return fmt.Errorf("replacing chunk index: %w", err)
	}
	return nil
}

// add records metadata for the given chunks and persists the index.
func (idx *chunkIndex) add(chunks []processor.Chunk) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, chunk := range chunks {
		idx.entries[chunk.ID] = chunk.Metadata
	}
	return idx.saveLocked()
}

// remove drops the given IDs and persists the index.
func (idx *chunkIndex) remove(ids []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, id := range ids {
		delete(idx.entries, id)
	}
	return idx.saveLocked()
}

// clear drops every entry and persists the index.
func (idx *chunkIndex) clear() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = make(map[string]processor.ChunkMetadata)
	return idx.saveLocked()
}

// idsMatching returns the IDs whose metadata satisfies the filter.
func (idx *chunkIndex) idsMatching(filter Filter) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var ids []string
	for id, meta := range idx.entries {
		if filter.Matches(meta) {
			ids = append(ids, id)
		}
	}
	return ids
}

// documentIDs returns the IDs of one document path ordered by chunk index.
// An empty version matches every version.
func (idx *chunkIndex) documentIDs(path, version string) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	type ordered struct {
		id    string
		index int
	}
	var hits []ordered
	for id, meta := range idx.entries {
		if meta.DocumentPath != path {
			continue
		}
		if version != "" && meta.Version != version {
			continue
		}
		hits = append(hits, ordered{id: id, index: meta.ChunkIndex})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].index < hits[j].index })

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids
}

// catalog returns the distinct versions and tags across all entries, sorted.
func (idx *chunkIndex) catalog() (versions, tags []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	versionSet := make(map[string]struct{})
	tagSet := make(map[string]struct{})
	for _, meta := range idx.entries {
		if meta.Version != "" {
			versionSet[meta.Version] = struct{}{}
		}
		for _, tag := range meta.Tags {
			tagSet[tag] = struct{}{}
		}
	}

	versions = make([]string, 0, len(versionSet))
	for v := range versionSet {
		versions = append(versions, v)
	}
	tags = make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(versions)
	sort.Strings(tags)
	return versions, tags
}
