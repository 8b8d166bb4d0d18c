// Package openai implements the page reflector on an OpenAI-compatible chat
// completion API via langchaingo.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/civicgraph/harvester/internal/crawler"
)

// Config holds the reflector's model settings.
type Config struct {
	// BaseURL points at an OpenAI-compatible endpoint.
	BaseURL string
	Model   string
	APIKey  string

	// Locale is the BCP 47 tag of the content the model should expect.
	Locale string

	// MinDescriptionChars asks the model to favor descriptions at least this
	// long when the page supports it.
	MinDescriptionChars int

	// MaxTextChars truncates the page text sent to the model.
	MaxTextChars int
}

func (c *Config) applyDefaults() {
	if c.Locale == "" {
		c.Locale = "uk"
	}
	if c.MinDescriptionChars == 0 {
		c.MinDescriptionChars = 600
	}
	if c.MaxTextChars == 0 {
		c.MaxTextChars = 12000
	}
}

// Reflector extracts organization and project facts from page snapshots.
type Reflector struct {
	cfg    Config
	model  llms.Model
	logger *zap.Logger
}

// New builds a Reflector talking to the configured endpoint.
func New(cfg Config, logger *zap.Logger) (*Reflector, error) {
	cfg.applyDefaults()
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return NewWithModel(cfg, llm, logger), nil
}

// NewWithModel injects the language model directly (used by tests).
func NewWithModel(cfg Config, model llms.Model, logger *zap.Logger) *Reflector {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reflector{cfg: cfg, model: model, logger: logger}
}

// extraction mirrors the JSON document the model is asked to emit.
type extraction struct {
	Organizations []struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		Website      string `json:"website"`
		ContactEmail string `json:"contact_email"`
	} `json:"organizations"`
	Projects []struct {
		Name                string `json:"name"`
		Summary             string `json:"summary"`
		OrganizationName    string `json:"organization_name"`
		OrganizationWebsite string `json:"organization_website"`
		SourceURL           string `json:"source_url"`
	} `json:"projects"`
	NextURLs []string `json:"next_urls"`
}

// Reflect implements crawler.Reflector. Transport failures and unparseable
// model output surface as classified reflect errors; the controller degrades
// the step either way.
func (r *Reflector) Reflect(ctx context.Context, snap crawler.PageSnapshot, topic crawler.TopicContext) (crawler.ExtractionResult, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, r.systemPrompt(topic)),
		llms.TextParts(llms.ChatMessageTypeHuman, r.pagePrompt(snap)),
	}

	resp, err := r.model.GenerateContent(ctx, messages,
		llms.WithJSONMode(),
		llms.WithTemperature(0),
	)
	if err != nil {
		return crawler.ExtractionResult{}, &crawler.ReflectError{Kind: crawler.ReflectServiceUnavailable, Err: err}
	}
	if len(resp.Choices) == 0 {
		return crawler.ExtractionResult{}, &crawler.ReflectError{
			Kind: crawler.ReflectMalformedOutput,
			Err:  fmt.Errorf("model returned no choices"),
		}
	}

	return parseExtraction(resp.Choices[0].Content, snap.URL)
}

func parseExtraction(content, sourceURL string) (crawler.ExtractionResult, error) {
	var parsed extraction
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &parsed); err != nil {
		return crawler.ExtractionResult{}, &crawler.ReflectError{
			Kind: crawler.ReflectMalformedOutput,
			Err:  fmt.Errorf("parse model output: %w", err),
		}
	}

	var result crawler.ExtractionResult
	for _, org := range parsed.Organizations {
		if strings.TrimSpace(org.Name) == "" && strings.TrimSpace(org.Website) == "" {
			continue
		}
		result.Organizations = append(result.Organizations, crawler.OrganizationFact{
			Name:         strings.TrimSpace(org.Name),
			Description:  strings.TrimSpace(org.Description),
			Website:      strings.TrimSpace(org.Website),
			ContactEmail: strings.TrimSpace(org.ContactEmail),
		})
	}
	for _, prj := range parsed.Projects {
		if strings.TrimSpace(prj.Name) == "" {
			continue
		}
		src := strings.TrimSpace(prj.SourceURL)
		if src == "" {
			src = sourceURL
		}
		result.Projects = append(result.Projects, crawler.ProjectFact{
			Name:                strings.TrimSpace(prj.Name),
			Summary:             strings.TrimSpace(prj.Summary),
			OrganizationName:    strings.TrimSpace(prj.OrganizationName),
			OrganizationWebsite: strings.TrimSpace(prj.OrganizationWebsite),
			SourceURL:           src,
		})
	}
	for _, u := range parsed.NextURLs {
		if u = strings.TrimSpace(u); u != "" {
			result.NextURLs = append(result.NextURLs, u)
		}
	}
	return result, nil
}

func (r *Reflector) systemPrompt(topic crawler.TopicContext) string {
	var b strings.Builder
	b.WriteString("You extract structured facts about nonprofit organizations and their projects from web pages.\n")
	fmt.Fprintf(&b, "Topic: %s. %s\n", topic.Name, topic.Description)
	if len(topic.Terms) > 0 {
		fmt.Fprintf(&b, "Relevant terms: %s.\n", strings.Join(topic.Terms, ", "))
	}
	fmt.Fprintf(&b, "Pages are often in the %q locale; keep extracted text in its original language.\n", r.cfg.Locale)
	fmt.Fprintf(&b, "Prefer organization descriptions of at least %d characters when the page provides enough material; never invent facts to pad them.\n", r.cfg.MinDescriptionChars)
	b.WriteString(`Respond with a single JSON object:
{"organizations":[{"name":"","description":"","website":"","contact_email":""}],` +
		`"projects":[{"name":"","summary":"","organization_name":"","organization_website":"","source_url":""}],` +
		`"next_urls":[""]}
Only include organizations and projects clearly related to the topic. ` +
		`next_urls lists on-page links worth visiting next; leave arrays empty rather than guessing.`)
	return b.String()
}

func (r *Reflector) pagePrompt(snap crawler.PageSnapshot) string {
	text := snap.Text
	if len(text) > r.cfg.MaxTextChars {
		text = text[:r.cfg.MaxTextChars]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", snap.URL)
	if snap.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", snap.Title)
	}
	b.WriteString("Page text:\n")
	b.WriteString(text)
	return b.String()
}

// stripCodeFence tolerates models that wrap JSON in a markdown fence despite
// JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
