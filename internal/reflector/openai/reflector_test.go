package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/civicgraph/harvester/internal/crawler"
)

type fakeModel struct {
	content string
	err     error
	prompts []string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompts = append(f.prompts, text.Text)
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.content}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

var testTopic = crawler.TopicContext{
	ID:          "veteran-support",
	Name:        "Veteran support",
	Description: "Organizations helping veterans reintegrate.",
	Terms:       []string{"ветерани", "реабілітація"},
}

func TestReflectParsesExtraction(t *testing.T) {
	t.Parallel()

	model := &fakeModel{content: `{
		"organizations": [
			{"name": "Побратими", "description": "Peer support program.", "website": "https://pobratymy.org", "contact_email": "info@pobratymy.org"}
		],
		"projects": [
			{"name": "Перехід", "summary": "Transition course.", "organization_name": "Побратими", "source_url": ""}
		],
		"next_urls": ["https://pobratymy.org/projects", "  "]
	}`}

	r := NewWithModel(Config{}, model, zap.NewNop())
	snap := crawler.PageSnapshot{URL: "https://pobratymy.org/about", Text: "about text"}

	result, err := r.Reflect(context.Background(), snap, testTopic)
	require.NoError(t, err)
	require.Len(t, result.Organizations, 1)
	require.Equal(t, "Побратими", result.Organizations[0].Name)
	require.Len(t, result.Projects, 1)

	// A project without its own source URL inherits the page URL.
	require.Equal(t, "https://pobratymy.org/about", result.Projects[0].SourceURL)
	require.Equal(t, []string{"https://pobratymy.org/projects"}, result.NextURLs)
}

func TestReflectToleratesCodeFence(t *testing.T) {
	t.Parallel()

	model := &fakeModel{content: "```json\n{\"organizations\":[],\"projects\":[],\"next_urls\":[]}\n```"}
	r := NewWithModel(Config{}, model, zap.NewNop())

	result, err := r.Reflect(context.Background(), crawler.PageSnapshot{URL: "https://x.example"}, testTopic)
	require.NoError(t, err)
	require.Empty(t, result.Organizations)
}

func TestReflectClassifiesMalformedOutput(t *testing.T) {
	t.Parallel()

	model := &fakeModel{content: "sorry, I cannot help with that"}
	r := NewWithModel(Config{}, model, zap.NewNop())

	_, err := r.Reflect(context.Background(), crawler.PageSnapshot{URL: "https://x.example"}, testTopic)
	var reflectErr *crawler.ReflectError
	require.ErrorAs(t, err, &reflectErr)
	require.Equal(t, crawler.ReflectMalformedOutput, reflectErr.Kind)
}

func TestReflectClassifiesServiceFailure(t *testing.T) {
	t.Parallel()

	model := &fakeModel{err: errors.New("upstream 503")}
	r := NewWithModel(Config{}, model, zap.NewNop())

	_, err := r.Reflect(context.Background(), crawler.PageSnapshot{URL: "https://x.example"}, testTopic)
	var reflectErr *crawler.ReflectError
	require.ErrorAs(t, err, &reflectErr)
	require.Equal(t, crawler.ReflectServiceUnavailable, reflectErr.Kind)
}

func TestReflectSkipsNamelessFacts(t *testing.T) {
	t.Parallel()

	model := &fakeModel{content: `{
		"organizations": [{"name": "  ", "website": ""}],
		"projects": [{"name": ""}],
		"next_urls": []
	}`}
	r := NewWithModel(Config{}, model, zap.NewNop())

	result, err := r.Reflect(context.Background(), crawler.PageSnapshot{URL: "https://x.example"}, testTopic)
	require.NoError(t, err)
	require.Empty(t, result.Organizations)
	require.Empty(t, result.Projects)
}

func TestPromptCarriesTopicAndPage(t *testing.T) {
	t.Parallel()

	model := &fakeModel{content: `{"organizations":[],"projects":[],"next_urls":[]}`}
	r := NewWithModel(Config{MaxTextChars: 10}, model, zap.NewNop())

	snap := crawler.PageSnapshot{
		URL:   "https://x.example",
		Title: "About us",
		Text:  "0123456789 this tail is truncated",
	}
	_, err := r.Reflect(context.Background(), snap, testTopic)
	require.NoError(t, err)

	joined := ""
	for _, p := range model.prompts {
		joined += p + "\n"
	}
	require.Contains(t, joined, "Veteran support")
	require.Contains(t, joined, "ветерани")
	require.Contains(t, joined, "0123456789")
	require.NotContains(t, joined, "truncated")
}
