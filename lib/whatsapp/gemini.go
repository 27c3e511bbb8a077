package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	ai "github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"homecare/lib/metrics"
	"homecare/lib/models"
)

const DefaultGeminiModel = "gemini-2.0-flash"

const routingPrompt = `You route customer WhatsApp messages for a home services company.
Pick exactly one team from: %s.
Use "emergency" only for danger to people or property happening now.
Answer with JSON only, no prose: {"team": "<team>", "confidence": <0..1>}

Message:
%s`

type generateFunc func(ctx context.Context, prompt string) (string, error)

// GeminiRouter asks Gemini for a team and falls back to the keyword router
// whenever the call fails or the answer is not a known team.
type GeminiRouter struct {
	generate generateFunc
	fallback Router
	close    func() error
	timeout  time.Duration
	logger   *logrus.Logger
	metrics  *metrics.Metrics
}

func NewGeminiRouter(ctx context.Context, apiKey, modelName string, logger *logrus.Logger, m *metrics.Metrics) (*GeminiRouter, error) {
	client, err := ai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	generate := func(ctx context.Context, prompt string) (string, error) {
		resp, err := model.GenerateContent(ctx, ai.Text(prompt))
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, p := range cand.Content.Parts {
				if t, ok := p.(ai.Text); ok {
					sb.WriteString(string(t))
				}
			}
		}
		return sb.String(), nil
	}

	r := newGeminiRouter(generate, logger, m)
	r.close = client.Close
	return r, nil
}

func newGeminiRouter(generate generateFunc, logger *logrus.Logger, m *metrics.Metrics) *GeminiRouter {
	return &GeminiRouter{
		generate: generate,
		fallback: KeywordRouter{},
		timeout:  8 * time.Second,
		logger:   logger,
		metrics:  m,
	}
}

func (r *GeminiRouter) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

func (r *GeminiRouter) Route(ctx context.Context, text string) (Routing, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	raw, err := r.generate(ctx, fmt.Sprintf(routingPrompt, strings.Join(models.Teams(), ", "), text))
	if err == nil {
		var routing Routing
		routing, err = parseRouting(raw)
		if err == nil {
			r.observe("ok", start)
			return routing, nil
		}
	}
	r.observe("error", start)
	r.logger.WithError(err).Warn("gemini routing failed, using keyword router")

	routing, _ := r.fallback.Route(ctx, text)
	routing.Source = SourceFallback
	return routing, nil
}

func (r *GeminiRouter) observe(status string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.GeminiRequests.WithLabelValues(status).Inc()
	r.metrics.GeminiLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func parseRouting(raw string) (Routing, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var answer struct {
		Team       string  `json:"team"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &answer); err != nil {
		return Routing{}, fmt.Errorf("unparseable routing answer %q: %w", raw, err)
	}
	team := strings.ToLower(strings.TrimSpace(answer.Team))
	if !slices.Contains(models.Teams(), team) {
		return Routing{}, fmt.Errorf("unknown team %q", answer.Team)
	}
	confidence := min(max(answer.Confidence, 0), 1)
	return Routing{Team: team, Confidence: confidence, Source: SourceGemini}, nil
}
