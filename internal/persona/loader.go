package persona

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Loader loads NPC profiles from a directory of JSON files and resolves
// profile inheritance. Files named base_*.json are base profiles that
// concrete profiles may extend; they are not exposed as NPCs themselves.
//
// Merge strategy, field by field:
//   - profile_id, name, role, extends: never inherited
//   - backstory: child overrides when set
//   - personality_traits, response_format: deep-merged, child key wins
//   - knowledge_areas: union, child entries first, duplicates removed
type Loader struct {
	bases    map[string]*Profile
	profiles map[string]*Profile
	logger   *slog.Logger
}

// NewLoader loads all profiles from dir. A missing directory is not an
// error; the loader is just empty.
func NewLoader(dir string, logger *slog.Logger) (*Loader, error) {
	l := &Loader{
		bases:    make(map[string]*Profile),
		profiles: make(map[string]*Profile),
		logger:   logger,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("Profile directory not found", "dir", dir)
			return l, nil
		}
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}

	// Base profiles first, so inheritance can resolve against them.
	var concrete []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(dir, name)
		if strings.HasPrefix(name, "base_") {
			p, err := readProfile(path)
			if err != nil {
				return nil, err
			}
			l.bases[p.ID] = p
		} else {
			concrete = append(concrete, path)
		}
	}

	for _, path := range concrete {
		p, err := readProfile(path)
		if err != nil {
			return nil, err
		}
		resolved, err := l.resolve(p, map[string]bool{})
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.ID, err)
		}
		l.profiles[resolved.ID] = resolved
	}

	logger.Debug("Loaded NPC profiles", "bases", len(l.bases), "profiles", len(l.profiles))
	return l, nil
}

// Get returns a resolved profile by ID.
func (l *Loader) Get(id string) (*Profile, bool) {
	p, ok := l.profiles[id]
	return p, ok
}

// List returns all resolved profiles sorted by ID.
func (l *Loader) List() []*Profile {
	out := make([]*Profile, 0, len(l.profiles))
	for _, p := range l.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func readProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", path, err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("profile %s missing profile_id", path)
	}
	return &p, nil
}

// resolve applies inheritance for a profile, walking its extends list
// with a visited set so circular inheritance fails instead of recursing
// forever.
func (l *Loader) resolve(p *Profile, visited map[string]bool) (*Profile, error) {
	if len(p.Extends) == 0 {
		return p, nil
	}
	if visited[p.ID] {
		return nil, fmt.Errorf("circular inheritance detected at %q", p.ID)
	}
	visited[p.ID] = true

	result := p
	for _, baseID := range p.Extends {
		if visited[baseID] {
			return nil, fmt.Errorf("circular inheritance detected at %q", baseID)
		}
		base, ok := l.bases[baseID]
		if !ok {
			l.logger.Warn("Base profile not found", "base_id", baseID, "profile_id", p.ID)
			continue
		}
		// Each branch gets its own copy of the visited set so diamond
		// inheritance is not mistaken for a cycle.
		branch := make(map[string]bool, len(visited))
		for k, v := range visited {
			branch[k] = v
		}
		resolvedBase, err := l.resolve(base, branch)
		if err != nil {
			return nil, err
		}
		result = merge(resolvedBase, result)
	}
	return result, nil
}

func merge(base, child *Profile) *Profile {
	out := &Profile{
		ID:      child.ID,
		Name:    child.Name,
		Role:    child.Role,
		Extends: child.Extends,
	}

	out.Backstory = child.Backstory
	if out.Backstory == "" {
		out.Backstory = base.Backstory
	}

	out.Traits = make(map[string]float64, len(base.Traits)+len(child.Traits))
	for k, v := range base.Traits {
		out.Traits[k] = v
	}
	for k, v := range child.Traits {
		out.Traits[k] = v
	}

	out.ResponseFormats = make(map[string]string, len(base.ResponseFormats)+len(child.ResponseFormats))
	for k, v := range base.ResponseFormats {
		out.ResponseFormats[k] = v
	}
	for k, v := range child.ResponseFormats {
		out.ResponseFormats[k] = v
	}

	seen := make(map[string]bool, len(child.KnowledgeAreas))
	for _, area := range child.KnowledgeAreas {
		if !seen[area] {
			out.KnowledgeAreas = append(out.KnowledgeAreas, area)
			seen[area] = true
		}
	}
	for _, area := range base.KnowledgeAreas {
		if !seen[area] {
			out.KnowledgeAreas = append(out.KnowledgeAreas, area)
			seen[area] = true
		}
	}

	return out
}
