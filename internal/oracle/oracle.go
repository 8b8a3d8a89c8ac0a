// Package oracle wraps the external reasoning model used for holistic
// decision synthesis and the customer narrative. Both calls return strict
// JSON; any transport or parse failure is reported as an error so the caller
// can fall back to the closed-form computation.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultTimeout = 20 * time.Second

// Config configures the oracle client. It accepts any OpenAI-compatible chat
// completion endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is the reasoning oracle.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a Client from the given config.
func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("oracle model is required")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "unused" // local OpenAI-compatible servers accept any key
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{api: openai.NewClientWithConfig(clientCfg), model: cfg.Model}, nil
}

// DecisionInput carries everything the oracle needs for synthesis.
type DecisionInput struct {
	FloodScore    float64
	FloodZone     string
	PlanningScore float64
	PlanningLabel string
	AgeScore      float64
	AgeBand       string
	LocalityScore float64
	LocalityLabel string
	PolicyContext []string
}

// Decision is the oracle's structured underwriting decision.
type Decision struct {
	OverallScore      float64 `json:"overall_risk_score"`
	PremiumMultiplier float64 `json:"premium_multiplier"`
	Decision          string  `json:"decision"`
	Reasoning         string  `json:"underwriter_reasoning"`
}

const decisionSystemPrompt = "You are an expert UK home insurance underwriter. Respond only with valid JSON."

// Decide asks the oracle for a holistic underwriting decision.
func (c *Client) Decide(ctx context.Context, in DecisionInput) (Decision, error) {
	policyContext := "No policy guidelines available."
	if len(in.PolicyContext) > 0 {
		policyContext = strings.Join(in.PolicyContext, "\n\n")
	}

	prompt := fmt.Sprintf(`Use these policy guidelines:

%s

Sub-agent risk scores:
- Flood risk:         %.1f/100 (Zone %s)
- Planning activity:  %.1f/100 (Planning density: %s)
- Construction age:   %.1f/100 (Age band: %s)
- Locality safety:    %.1f/100 (Crime level: %s)

Decision thresholds (based on overall_risk_score):
  accept  -> score < 60
  refer   -> score 60-79
  decline -> score >= 80

Premium multiplier range: 0.80x - 3.00x

Return ONLY this JSON (no markdown):
{
  "overall_risk_score": <0-100>,
  "premium_multiplier": <0.8-3.0>,
  "decision": "<accept|refer|decline>",
  "underwriter_reasoning": "<2-3 sentence synthesis of all findings>"
}`,
		policyContext,
		in.FloodScore, in.FloodZone,
		in.PlanningScore, in.PlanningLabel,
		in.AgeScore, in.AgeBand,
		in.LocalityScore, in.LocalityLabel)

	var out Decision
	if err := c.completeJSON(ctx, decisionSystemPrompt, prompt, &out); err != nil {
		return Decision{}, err
	}
	if out.Decision == "" {
		return Decision{}, fmt.Errorf("oracle decision missing decision field")
	}
	return out, nil
}

// NarrativeInput carries the full assessment for the customer explanation.
type NarrativeInput struct {
	Address              string
	Decision             string
	OverallScore         float64
	PremiumMultiplier    float64
	FloodScore           float64
	FloodZone            string
	FloodReasoning       string
	PlanningScore        float64
	PlanningLabel        string
	PlanningReasoning    string
	AgeScore             float64
	AgeBand              string
	ProfileSummary       string
	LocalityScore        float64
	LocalityLabel        string
	LocalityReasoning    string
	UnderwriterReasoning string
	PolicyContext        []string
}

// RiskFactor is one entry in the structured risk breakdown.
type RiskFactor struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Reasoning string  `json:"reasoning"`
}

// Narrative is the oracle's structured explainability output.
type Narrative struct {
	RiskFactors     []RiskFactor `json:"risk_factors"`
	PolicyCitations []string     `json:"policy_citations"`
	Narrative       string       `json:"plain_english_narrative"`
}

// Narrate asks the oracle for the customer-facing explanation.
func (c *Client) Narrate(ctx context.Context, in NarrativeInput) (Narrative, error) {
	policyContext := "None"
	if len(in.PolicyContext) > 0 {
		policyContext = strings.Join(in.PolicyContext, "\n")
	}

	prompt := fmt.Sprintf(`You are an AI assistant explaining an insurance underwriting decision to a customer.

Assessment data:
- Address: %s
- Decision: %s
- Overall Risk Score: %.1f/100
- Premium Multiplier: %.2fx
- Flood risk: %.1f/100 (Zone %s) - %s
- Planning activity: %.1f/100 (%s planning density) - %s
- Construction age: %.1f/100 (%s) - %s
- Locality safety: %.1f/100 (%s) - %s
- Underwriter reasoning: %s

Policy guidelines used:
%s

Return ONLY this JSON (no markdown):
{
  "risk_factors": [
    {"name": "Flood Risk", "score": <0-100>, "weight": 0.40, "reasoning": "<1 sentence>"},
    {"name": "Property Age Risk", "score": <0-100>, "weight": 0.25, "reasoning": "<1 sentence>"},
    {"name": "Planning & Development Risk", "score": <0-100>, "weight": 0.20, "reasoning": "<1 sentence>"},
    {"name": "Locality & Crime Risk", "score": <0-100>, "weight": 0.15, "reasoning": "<1 sentence>"}
  ],
  "policy_citations": ["<PolicyName - Section>"],
  "plain_english_narrative": "<3-5 sentences explaining the decision in plain English>"
}`,
		in.Address, strings.ToUpper(in.Decision), in.OverallScore, in.PremiumMultiplier,
		in.FloodScore, in.FloodZone, in.FloodReasoning,
		in.PlanningScore, in.PlanningLabel, in.PlanningReasoning,
		in.AgeScore, in.AgeBand, in.ProfileSummary,
		in.LocalityScore, in.LocalityLabel, in.LocalityReasoning,
		in.UnderwriterReasoning,
		policyContext)

	var out Narrative
	if err := c.completeJSON(ctx, "", prompt, &out); err != nil {
		return Narrative{}, err
	}
	if out.Narrative == "" {
		return Narrative{}, fmt.Errorf("oracle narrative missing plain_english_narrative field")
	}
	return out, nil
}

// completeJSON sends one chat completion and decodes the JSON body of the
// reply into out.
func (c *Client) completeJSON(ctx context.Context, system, prompt string, out any) error {
	messages := []openai.ChatCompletionMessage{}
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return fmt.Errorf("oracle completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("oracle returned no choices")
	}

	text := stripFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("parsing oracle response: %w", err)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence from a reply, which
// some models add despite the no-markdown instruction.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, "```") {
		return text
	}
	parts := strings.Split(text, "```")
	if len(parts) > 1 {
		text = parts[1]
	}
	text = strings.TrimPrefix(text, "json")
	return strings.TrimSpace(text)
}
