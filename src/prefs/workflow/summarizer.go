package workflow

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// Summary limits applied to every stored preference summary.
const (
	MaxSummaryChars = 3000
	MaxSummaryLines = 50
)

// SummaryInput is what a summarizer folds into the current summary.
type SummaryInput struct {
	Domain      model.Domain
	Current     string
	Opinion     string
	Description string
}

// Summarizer rewrites a domain's preference summary after a new activity.
type Summarizer interface {
	Summarize(ctx context.Context, in SummaryInput) (string, error)
}

// HeuristicSummarizer appends "<opinion>: <first description line>" to the
// current summary. Deterministic, for tests and offline use.
type HeuristicSummarizer struct{}

func (HeuristicSummarizer) Summarize(_ context.Context, in SummaryInput) (string, error) {
	opinion := strings.TrimSpace(in.Opinion)
	if opinion == "" {
		opinion = "Consumed"
	}
	subject, _, _ := strings.Cut(strings.TrimSpace(in.Description), "\n")
	line := opinion + ": " + subject

	current := strings.TrimSpace(in.Current)
	if current == "" {
		return line, nil
	}
	for _, existing := range strings.Split(current, "\n") {
		if existing == line {
			return current, nil
		}
	}
	return current + "\n" + line, nil
}

const summarizerInstruction = `You maintain concise summaries of a user's preferences for movies, music and products.

You receive the current summary, the user's opinion of a new item and the item's structured description.
Return an updated summary that:
1. Keeps the key information of the current summary.
2. Incorporates the new opinion and the themes, genres, categories and attributes of the item.
3. Files the item under one of Loved, Okish or Did not like, keeping these lists per domain:
   Loved Movies / Okish Movies / Did not like Movies, and likewise for Music and Products.
4. Never exceeds 3000 characters or 50 lines; compress without losing meaningful details.

Prefer general names over brand names or SKUs. Keep a neutral, informative tone.

Answer in this layout and nothing else:

Summary: <updated user preference summary>

Loved Movies: [...]
Okish Movies: [...]
Did not like Movies: [...]

Loved Music: [...]
Okish Music: [...]
Did not like Music: [...]

Loved Products: [...]
Okish Products: [...]
Did not like Products: [...]`

// AnthropicSummarizer asks an Anthropic model to fold the new opinion into the summary.
type AnthropicSummarizer struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

// NewAnthropicSummarizer reads ANTHROPIC_API_KEY from the environment.
func NewAnthropicSummarizer(model string, maxTokens int, opts ...anthropicopt.RequestOption) *AnthropicSummarizer {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	cl := anthropic.NewClient(opts...)
	return &AnthropicSummarizer{Client: &cl, Model: model, MaxTokens: maxTokens}
}

func (a *AnthropicSummarizer) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	prompt := fmt.Sprintf("Domain: %s\n\nCurrent summary:\n%s\n\nUser opinion:\n%s\n\nItem description:\n%s",
		in.Domain, orNone(in.Current), orNone(in.Opinion), in.Description)

	msg, err := a.Client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(a.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: summarizerInstruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("anthropic: empty summary")
	}
	return out, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

// CapSummary keeps the most recent lines of text within MaxSummaryLines and
// MaxSummaryChars.
func CapSummary(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > MaxSummaryLines {
		lines = lines[len(lines)-MaxSummaryLines:]
	}
	for len(lines) > 1 && utf8.RuneCountInString(strings.Join(lines, "\n")) > MaxSummaryChars {
		lines = lines[1:]
	}
	out := strings.Join(lines, "\n")
	if utf8.RuneCountInString(out) > MaxSummaryChars {
		r := []rune(out)
		out = string(r[len(r)-MaxSummaryChars:])
	}
	return out
}
