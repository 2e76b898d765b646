package domain

import "time"

type PromptMeta struct {
	Plugin      string `json:"plugin"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type IntentEntry struct {
	Synonyms []string `json:"synonyms"`
	Tool     string   `json:"tool"`
	Params   []string `json:"params"`
}

type IntentMap map[string]IntentEntry

type RecipeStep struct {
	Tool   string            `json:"tool"`
	Params map[string]string `json:"params"`
}

type Recipe struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Preconditions  []string     `json:"preconditions"`
	Steps          []RecipeStep `json:"steps"`
	Postconditions []string     `json:"postconditions"`
}

type Examples struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Recipes     []Recipe  `json:"recipes"`
}

type CapabilityTool struct {
	Plugin      string `json:"plugin"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// Example holds ready-to-send arguments, when one is known.
	Example map[string]any `json:"example,omitempty"`
}

type CapabilityResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MIMEType    string `json:"mimeType"`
}

type CapabilityIndex struct {
	GeneratedAt time.Time            `json:"generatedAt"`
	Tools       []CapabilityTool     `json:"tools"`
	Resources   []CapabilityResource `json:"resources"`
	Prompts     []PromptMeta         `json:"prompts"`
}

func NewCapabilityIndex(now time.Time) CapabilityIndex {
	return CapabilityIndex{
		GeneratedAt: now,
		Tools:       make([]CapabilityTool, 0),
		Resources:   make([]CapabilityResource, 0),
		Prompts:     make([]PromptMeta, 0),
	}
}
