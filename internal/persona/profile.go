package persona

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Profile describes one NPC personality. Profiles are loaded from JSON
// files and may extend base profiles (see Loader).
type Profile struct {
	ID              string             `json:"profile_id"`
	Name            string             `json:"name"`
	Role            string             `json:"role"`
	Traits          map[string]float64 `json:"personality_traits"`
	KnowledgeAreas  []string           `json:"knowledge_areas"`
	Backstory       string             `json:"backstory"`
	Extends         []string           `json:"extends,omitempty"`
	ResponseFormats map[string]string  `json:"response_format,omitempty"`
}

var titleCaser = cases.Title(language.English)

// SystemPrompt renders the persona as a system prompt segment.
func (p *Profile) SystemPrompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a %s. %s\n\n", p.Name, p.Role, p.Backstory)

	if len(p.Traits) > 0 {
		sb.WriteString("Your personality traits are:\n")
		// Sorted so the prompt is byte-stable across calls
		traits := make([]string, 0, len(p.Traits))
		for trait := range p.Traits {
			traits = append(traits, trait)
		}
		sort.Strings(traits)
		for _, trait := range traits {
			fmt.Fprintf(&sb, "- %s: %.1f\n", titleCaser.String(trait), p.Traits[trait])
		}
	}

	if len(p.KnowledgeAreas) > 0 {
		fmt.Fprintf(&sb, "\nYou are knowledgeable about: %s", strings.Join(p.KnowledgeAreas, ", "))
	}

	return strings.TrimSpace(sb.String())
}

// FormatResponse applies the intent-specific response format, falling
// back to the default format when no intent matches.
func (p *Profile) FormatResponse(response, intent string) string {
	format, ok := p.ResponseFormats[intent]
	if !ok {
		format, ok = p.ResponseFormats["default"]
		if !ok {
			return response
		}
	}
	out := strings.ReplaceAll(format, "{name}", p.Name)
	return strings.ReplaceAll(out, "{response}", response)
}

// Trait returns a personality trait value, defaulting to 0.5 when unset.
func (p *Profile) Trait(name string) float64 {
	if v, ok := p.Traits[name]; ok {
		return v
	}
	return 0.5
}
