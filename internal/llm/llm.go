package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// KeywordClient asks a chat model for the keywords of a paper.
type KeywordClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger

	// ParseRetryBudget bounds how long malformed replies are retried.
	ParseRetryBudget time.Duration
}

type Option func(*KeywordClient)

func WithLogger(logger *slog.Logger) Option {
	return func(c *KeywordClient) {
		c.logger = logger
	}
}

func NewKeywordClient(baseURL, apiKey, model string, opts ...Option) *KeywordClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	c := &KeywordClient{
		client:           openai.NewClientWithConfig(cfg),
		model:            model,
		logger:           slog.Default(),
		ParseRetryBudget: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const keywordPrompt = `Task: Create a list of five keywords from the following text. Keywords can range from one to four words in length. Only extracted text should be included in the list of keywords. Keywords can include acronyms and abbreviations.

Return ONLY a JSON object of the form {"keywords": ["...", "..."]}. No markdown, no code fences.

---

Example Input Text:

SciBERT: A Pretrained Language Model for Scientific Text Obtaining large-scale annotated data for NLP tasks in the scientific domain is challenging and expensive. We release SciBERT, a pretrained language model based on BERT (Devlin et. al., 2018) to address the lack of high-quality, large-scale labeled scientific data. SciBERT leverages unsupervised pretraining on a large multi-domain corpus of scientific publications to improve performance on downstream scientific NLP tasks. We evaluate on a suite of tasks including sequence tagging, sentence classification and dependency parsing, with datasets from a variety of scientific domains. We demonstrate statistically significant improvements over BERT and achieve new state-of-the-art results on several of these tasks. The code and pretrained models are available at https://github.com/allenai/scibert/.

---

Example Output Text:

{"keywords": ["SciBERT", "Language Model for Scientific Text", "large-scale labeled scientific data", "Scientific Text", "SciBERT leverages unsupervised pretraining"]}

---

Input Text:

%s

---
`

type keywordResult struct {
	Keywords []string `json:"keywords"`
}

var errMalformed = errors.New("malformed keyword reply")

// Extract returns the model's keywords in the order given, scored by rank.
// Empty text yields an empty list.
func (c *KeywordClient) Extract(ctx context.Context, text string) ([]models.Keyword, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []models.Keyword{}, nil
	}

	var phrases []string
	op := func() error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(keywordPrompt, text)},
			},
			Temperature: 0,
			MaxTokens:   1000,
		})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("keyword LLM call: %w", err))
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("keyword LLM call: no choices returned"))
		}

		parsed, err := parseKeywords(resp.Choices[0].Message.Content)
		if err != nil {
			c.logger.Debug("retrying malformed keyword reply", "error", err)
			return err
		}
		phrases = parsed
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.ParseRetryBudget
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	out := make([]models.Keyword, 0, len(phrases))
	for i, p := range phrases {
		out = append(out, models.Keyword{Phrase: p, Score: 1 - float64(i)/float64(len(phrases))})
	}
	return out, nil
}

func parseKeywords(content string) ([]string, error) {
	content = stripCodeFences(content)

	var result keywordResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("%w: %v\nraw: %s", errMalformed, err, content)
	}

	seen := make(map[string]bool)
	var phrases []string
	for _, k := range result.Keywords {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		phrases = append(phrases, k)
	}
	if len(phrases) == 0 {
		return nil, fmt.Errorf("%w: no keywords in %q", errMalformed, content)
	}
	return phrases, nil
}

// stripCodeFences removes markdown code fences that some models wrap around JSON.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i != -1 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i != -1 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
