package live

import (
	"github.com/Riku4230/agenthackathon-4/internal/prompts"
	"github.com/Riku4230/agenthackathon-4/internal/session"
	"google.golang.org/genai"
)

const (
	ToolExtractRequirement = "extract_ui_requirement"
	ToolGenerateCode       = "generate_ui_code"

	defaultComponentName = "GeneratedComponent"
)

// DefaultSetup is the system instruction and tool set every session carries.
func DefaultSetup() Setup {
	return Setup{
		SystemInstruction: prompts.LiveSystem,
		Tools:             FunctionDeclarations(),
	}
}

func FunctionDeclarations() []*genai.FunctionDeclaration {
	componentTypes := make([]string, len(session.ComponentTypes))
	for i, ct := range session.ComponentTypes {
		componentTypes[i] = string(ct)
	}

	return []*genai.FunctionDeclaration{
		{
			Name:        ToolExtractRequirement,
			Description: "Record one UI requirement mentioned in the meeting.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"component_type": {
						Type:        genai.TypeString,
						Description: "Kind of UI component",
						Enum:        componentTypes,
					},
					"description": {
						Type:        genai.TypeString,
						Description: "What the component must do",
					},
					"priority": {
						Type:        genai.TypeString,
						Description: "How strongly it was requested",
						Enum:        []string{"high", "medium", "low"},
					},
					"context": {
						Type:        genai.TypeString,
						Description: "Surrounding detail from the conversation",
					},
				},
				Required: []string{"component_type", "description"},
			},
		},
		{
			Name:        ToolGenerateCode,
			Description: "Generate React component code for the requirements discussed so far.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"component_name": {
						Type:        genai.TypeString,
						Description: "PascalCase component name",
					},
					"requirements_summary": {
						Type:        genai.TypeString,
						Description: "Summary of the requirements to implement",
					},
				},
			},
		},
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
