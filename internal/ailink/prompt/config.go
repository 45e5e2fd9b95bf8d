package prompt

// Config describes a prompt definition loaded from YAML front matter.
type Config struct {
	Slug        string `yaml:"slug" json:"slug"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	// Role selects the configured model (quick, detailed, quality, keywords).
	Role string `yaml:"role" json:"role"`
	// Format is "json" when the prompt expects a JSON object back, "text" otherwise.
	Format         string         `yaml:"format,omitempty" json:"format,omitempty"`
	Input          InputSpec      `yaml:"input,omitempty" json:"input,omitempty"`
	SystemTemplate string         `yaml:"system_template,omitempty" json:"system_template,omitempty"`
	UserTemplate   string         `yaml:"user_template,omitempty" json:"user_template,omitempty"`
	ResponseSchema map[string]any `yaml:"response_schema,omitempty" json:"response_schema,omitempty"`
	MaxTokens      int            `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// InputSpec defines prompt input requirements.
type InputSpec struct {
	RequiredVariables []string `yaml:"required_variables,omitempty" json:"required_variables,omitempty"`
	OptionalVariables []string `yaml:"optional_variables,omitempty" json:"optional_variables,omitempty"`
}

// Prompt wraps a validated prompt configuration with its source.
type Prompt struct {
	Config Config
	Source string
}

// ExpectsJSON reports whether the prompt asks for a JSON object response.
func (p *Prompt) ExpectsJSON() bool {
	return p != nil && p.Config.Format == "json"
}

// Well-known prompt slugs.
const (
	SlugQuickRelevance    = "quick-relevance"
	SlugDetailedRelevance = "detailed-relevance"
	SlugPaperQuality      = "paper-quality"
	SlugSearchKeywords    = "search-keywords"
)
