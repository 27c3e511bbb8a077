package whatsapp

import (
	"context"
	"strings"

	"homecare/lib/models"
)

// Routing is the team an inbound message is handed to.
type Routing struct {
	Team       string
	Confidence float64
	Source     string
}

const (
	SourceKeyword  = "keyword"
	SourceGemini   = "gemini"
	SourceFallback = "keyword_fallback"
)

// Router classifies inbound text into one of models.Teams().
type Router interface {
	Route(ctx context.Context, text string) (Routing, error)
}

// Keywords per team, checked in priority order: emergencies win over
// everything else.
var teamKeywords = []struct {
	team     string
	keywords []string
}{
	{models.TeamEmergency, []string{"emergency", "urgent", "flood", "fire", "gas leak", "smoke", "burst", "no power", "sparks", "darurat"}},
	{models.TeamBilling, []string{"invoice", "bill", "billing", "payment", "pay", "refund", "charge", "subscription", "credit", "price"}},
	{models.TeamScheduling, []string{"appointment", "schedule", "reschedule", "book", "booking", "cancel", "tomorrow", "today", "time slot", "visit"}},
	{models.TeamMaintenance, []string{"leak", "repair", "broken", "fix", "plumb", "faucet", "heater", "boiler", "ac ", "air con", "roof", "electric", "clog", "maintenance"}},
}

// KeywordRouter is the offline classifier. Confidence grows with the number
// of matched keywords and is capped below what a model answer can claim.
type KeywordRouter struct{}

func (KeywordRouter) Route(_ context.Context, text string) (Routing, error) {
	lower := " " + strings.ToLower(text) + " "

	for _, tk := range teamKeywords {
		hits := 0
		for _, kw := range tk.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > 0 {
			confidence := 0.5 + 0.15*float64(hits-1)
			if confidence > 0.9 {
				confidence = 0.9
			}
			return Routing{Team: tk.team, Confidence: confidence, Source: SourceKeyword}, nil
		}
	}
	return Routing{Team: models.TeamGeneral, Confidence: 0.3, Source: SourceKeyword}, nil
}
