package config

import "fmt"

// AgentIdentity names one bot identity on the messaging side.
type AgentIdentity struct {
	Name   string `yaml:"name"`
	UserID string `yaml:"user_id"` // the bot's user ID (mention target)
	BotID  string `yaml:"bot_id"`  // the bot ID stamped on its posts
}

// SpecialistProfile is the static configuration for one specialist: its
// identity, its deterministic keyword table, and its optional tool set and
// model override. Profiles are fixed for the life of the process; the
// registry is built from them once at startup.
type SpecialistProfile struct {
	AgentIdentity `yaml:",inline"`

	// Keywords maps a lowercase keyword to the confidence claimed when the
	// task text contains it. The highest matching keyword wins.
	Keywords map[string]int `yaml:"keywords"`

	// BaseConfidence is claimed when no keyword matches (default 50).
	BaseConfidence int `yaml:"base_confidence"`

	// HandleThreshold is the can-handle cutoff for direct evaluation
	// (default 60).
	HandleThreshold int `yaml:"handle_threshold"`

	// Tools names the tool integrations this specialist may use during
	// execution: "websearch", "weather".
	Tools []string `yaml:"tools"`

	// LLM optionally overrides the process-wide model configuration for
	// this specialist.
	LLM *LLMConfig `yaml:"llm"`
}

// Validate checks one profile.
func (p *SpecialistProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile requires a name")
	}
	if p.UserID == "" || p.BotID == "" {
		return fmt.Errorf("profile %q requires user_id and bot_id", p.Name)
	}
	for kw, conf := range p.Keywords {
		if conf < 0 || conf > 100 {
			return fmt.Errorf("profile %q keyword %q confidence %d outside [0,100]", p.Name, kw, conf)
		}
	}
	if p.BaseConfidence < 0 || p.BaseConfidence > 100 {
		return fmt.Errorf("profile %q base_confidence %d outside [0,100]", p.Name, p.BaseConfidence)
	}
	if p.LLM != nil {
		if err := p.LLM.Validate(); err != nil {
			return fmt.Errorf("profile %q: %w", p.Name, err)
		}
	}
	return nil
}

// Base returns the profile's base confidence with the default applied.
func (p *SpecialistProfile) Base() int {
	if p.BaseConfidence == 0 {
		return 50
	}
	return p.BaseConfidence
}

// Threshold returns the can-handle cutoff with the default applied.
func (p *SpecialistProfile) Threshold() int {
	if p.HandleThreshold == 0 {
		return 60
	}
	return p.HandleThreshold
}

// HasTool reports whether the profile enables the named tool integration.
func (p *SpecialistProfile) HasTool(name string) bool {
	for _, t := range p.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// DefaultSpecialistProfiles returns the built-in trio. The keyword tables
// are deliberately deterministic: same task text, same confidence, no I/O.
func DefaultSpecialistProfiles() []SpecialistProfile {
	return []SpecialistProfile{
		{
			AgentIdentity: AgentIdentity{Name: "Researcher", UserID: "URESEARCH", BotID: "BRESEARCH"},
			Keywords: map[string]int{
				"research":    90,
				"find":        90,
				"search":      90,
				"investigate": 90,
				"study":       90,
				"arxiv":       90,
				"paper":       90,
			},
			Tools: []string{"websearch"},
		},
		{
			AgentIdentity: AgentIdentity{Name: "Writer", UserID: "UWRITER", BotID: "BWRITER"},
			Keywords: map[string]int{
				"write":    95,
				"story":    95,
				"compose":  95,
				"draft":    95,
				"poem":     95,
				"creative": 95,
				"essay":    95,
			},
		},
		{
			AgentIdentity: AgentIdentity{Name: "Grok", UserID: "UGROK", BotID: "BGROK"},
			Keywords: map[string]int{
				"weather":     96,
				"temperature": 96,
				"forecast":    96,
				"url":         95,
				"link":        95,
				"website":     95,
				"fetch":       95,
				"summarize":   95,
				"http":        95,
				"tts":         85,
				"speak":       85,
				"say":         85,
				"voice":       85,
				"audio":       85,
			},
			Tools: []string{"websearch", "weather"},
		},
	}
}
