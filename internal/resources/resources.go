package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/newsdigest/internal/config"
	"github.com/teemow/newsdigest/internal/llm"
	"github.com/teemow/newsdigest/internal/logging"
	"github.com/teemow/newsdigest/internal/server"
)

// Resource URIs.
const (
	ConfigURI       = "newsdigest://config"
	InstructionsURI = "newsdigest://instructions"
)

// RegisterResources registers the configuration resources.
func RegisterResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	configResource := mcp.NewResource(
		ConfigURI,
		"Effective Configuration",
		mcp.WithResourceDescription("Mailbox query, model and digest settings in effect, with secrets redacted"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(configResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(ConfigURI, RedactedConfig(sc.Config()))
	})

	instructionsResource := mcp.NewResource(
		InstructionsURI,
		"Prompt Instructions",
		mcp.WithResourceDescription("Instructions sent with the topic and summary requests"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(instructionsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(InstructionsURI, Instructions(sc.Config()))
	})

	return nil
}

// RedactedConfig returns a copy of cfg safe to show: the API key is
// replaced by its length.
func RedactedConfig(cfg *config.Config) config.Config {
	out := *cfg
	if out.OpenAI.APIKey != "" {
		out.OpenAI.APIKey = logging.SanitizeToken(out.OpenAI.APIKey)
	}
	return out
}

// InstructionSet lists the effective prompt instructions.
type InstructionSet struct {
	System  string   `json:"system"`
	Topics  []string `json:"topics"`
	Summary []string `json:"summary"`
}

// Instructions returns the instructions the server will send, falling back
// to the built-in defaults where cfg has none.
func Instructions(cfg *config.Config) InstructionSet {
	set := InstructionSet{
		System:  llm.SystemPrompt,
		Topics:  cfg.Digest.TopicInstructions,
		Summary: cfg.Digest.SummaryInstructions,
	}
	if len(set.Topics) == 0 {
		set.Topics = llm.DefaultTopicInstructions
	}
	if len(set.Summary) == 0 {
		set.Summary = llm.DefaultSummaryInstructions
	}
	return set
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
