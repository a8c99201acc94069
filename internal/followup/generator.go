package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/pilarlabs/studio-operator/internal/domain"
)

// Generator produces the message body for one followup. Implementations may
// fail; the scheduler always has a static fallback.
type Generator interface {
	Generate(ctx context.Context, lead *domain.Lead, channel domain.FollowupChannel, sentCount int) (string, error)
}

// BedrockGenerator writes followup copy with a Claude model on AWS Bedrock.
type BedrockGenerator struct {
	client  *bedrockruntime.Client
	modelID string
}

type bedrockMessage struct {
	Role    string                `json:"role"`
	Content []bedrockContentBlock `json:"content"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockGenerator loads the default AWS config for the region and returns
// a generator bound to the given model.
func NewBedrockGenerator(ctx context.Context, modelID, region string) (*BedrockGenerator, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if modelID == "" {
		modelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}

	g := &BedrockGenerator{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}
	log.Printf("[followup.BedrockGenerator] initialized model=%s region=%s", modelID, region)
	return g, nil
}

const generatorSystemPrompt = `You write short, friendly follow-up messages for a fitness studio reaching out to prospective members. Rules:
- One message only, no subject line, no signature block, no emojis.
- Warm and personal, never pushy. Reference that they showed interest in the studio.
- Invite a concrete next step (trial session, quick call, or a reply).
- Maximum 3 sentences for whatsapp/sms, maximum 6 for email.`

// Generate asks the model for followup copy tailored to the lead and channel.
func (g *BedrockGenerator) Generate(ctx context.Context, lead *domain.Lead, channel domain.FollowupChannel, sentCount int) (string, error) {
	prompt := fmt.Sprintf(
		"Write followup message #%d via %s to %s (lead tier %s, current status %s).",
		sentCount+1, channel, firstName(lead.Name), lead.Classification, lead.Status,
	)

	body, err := json.Marshal(bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        400,
		System:           generatorSystemPrompt,
		Messages: []bedrockMessage{
			{Role: "user", Content: []bedrockContentBlock{{Type: "text", Text: prompt}}},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("Bedrock API error: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty completion (stop_reason=%s)", resp.StopReason)
	}

	log.Printf("[followup.BedrockGenerator] generated lead=%s channel=%s (in: %d tokens, out: %d tokens)",
		lead.ID, channel, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return text, nil
}

// fallbackContent is the static copy used whenever generation fails. Sending
// a plain message beats losing the touchpoint.
func fallbackContent(lead *domain.Lead, channel domain.FollowupChannel) string {
	name := firstName(lead.Name)
	switch channel {
	case domain.ChannelEmail:
		return fmt.Sprintf("Hi %s,\n\nJust checking in from the studio. We'd love to get you in for a free trial session this week. Reply to this email and we'll find a time that works for you.\n\nSee you soon!", name)
	default:
		return fmt.Sprintf("Hi %s! Just checking in from the studio. Want to book a free trial session this week? Reply here and we'll set it up.", name)
	}
}

func firstName(full string) string {
	full = strings.TrimSpace(full)
	if full == "" {
		return "there"
	}
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
