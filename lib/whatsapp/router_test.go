package whatsapp

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homecare/lib/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func Test_KeywordRouter(t *testing.T) {
	cases := []struct {
		text string
		team string
	}{
		{"There is a gas leak in the kitchen!", models.TeamEmergency},
		{"Can you resend my last invoice?", models.TeamBilling},
		{"I need to reschedule tomorrow's appointment", models.TeamScheduling},
		{"The water heater is broken", models.TeamMaintenance},
		{"hello", models.TeamGeneral},
	}

	for _, c := range cases {
		routing, err := KeywordRouter{}.Route(context.Background(), c.text)
		require.NoError(t, err)
		assert.Equal(t, c.team, routing.Team, c.text)
		assert.Equal(t, SourceKeyword, routing.Source)
		assert.True(t, routing.Confidence > 0 && routing.Confidence <= 1)
	}
}

func Test_KeywordRouter_EmergencyOutranksMaintenance(t *testing.T) {
	routing, _ := KeywordRouter{}.Route(context.Background(), "burst pipe, need repair urgent")
	assert.Equal(t, models.TeamEmergency, routing.Team)
}

func Test_GeminiRouter_UsesModelAnswer(t *testing.T) {
	//Arrange
	var prompt string
	r := newGeminiRouter(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```json\n{\"team\": \"Billing\", \"confidence\": 1.7}\n```", nil
	}, quietLogger(), nil)

	//Act
	routing, err := r.Route(context.Background(), "why was I charged twice")

	//Assert
	require.NoError(t, err)
	assert.Equal(t, Routing{Team: models.TeamBilling, Confidence: 1, Source: SourceGemini}, routing)
	assert.Contains(t, prompt, "why was I charged twice")
	assert.Contains(t, prompt, "maintenance")
}

func Test_GeminiRouter_FallsBackOnFailure(t *testing.T) {
	answers := []struct {
		name string
		out  string
		err  error
	}{
		{"error", "", errors.New("quota exceeded")},
		{"garbage", "I think billing", nil},
		{"unknown team", `{"team":"sales","confidence":0.9}`, nil},
	}

	for _, a := range answers {
		t.Run(a.name, func(t *testing.T) {
			r := newGeminiRouter(func(context.Context, string) (string, error) { return a.out, a.err }, quietLogger(), nil)

			routing, err := r.Route(context.Background(), "my faucet is broken")

			require.NoError(t, err)
			assert.Equal(t, models.TeamMaintenance, routing.Team)
			assert.Equal(t, SourceFallback, routing.Source)
		})
	}
}
