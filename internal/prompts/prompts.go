package prompts

import (
	"fmt"
	"strings"
)

// LiveSystem is the instruction carried by every upstream live session.
const LiveSystem = `You are a silent assistant listening to a product meeting.
Your job is to notice when participants describe user interface functionality they want built.

When someone describes a UI element, call extract_ui_requirement once per distinct element with:
- component_type: one of button, form, list, card, modal, navigation, dashboard, table, chart, header, footer, sidebar, other
- description: what the element must do, in one or two sentences
- priority: high, medium or low, judged from how strongly it was requested
- context: any surrounding detail (data shown, who uses it, constraints)

When participants ask to see the result, or enough requirements exist to build a coherent component,
call generate_ui_code with a PascalCase component_name and a requirements_summary.

Keep spoken or written replies short. Do not invent requirements nobody asked for.`

const codeGuidelines = `Guidelines:
1. Use TypeScript with proper type definitions
2. Use Tailwind CSS for all styling
3. Make the component fully responsive
4. Include proper accessibility attributes (aria-labels, roles, etc.)
5. Add helpful comments for complex logic
6. Use modern React patterns (hooks, functional components)
7. Include realistic placeholder data where appropriate
8. Make the component self-contained and ready to use

Output ONLY the React component code, starting with imports and ending with the export. Do not include any markdown formatting, explanations, or code blocks - just the raw TypeScript/React code.`

// RequirementLine is the subset of a requirement that feeds a prompt.
type RequirementLine struct {
	ComponentType string
	Description   string
	Context       string
}

// FormatRequirements renders a 1-indexed "N. [type] description (Context: ...)" list.
func FormatRequirements(reqs []RequirementLine) string {
	lines := make([]string, len(reqs))
	for i, r := range reqs {
		line := fmt.Sprintf("%d. [%s] %s", i+1, r.ComponentType, r.Description)
		if r.Context != "" {
			line += fmt.Sprintf(" (Context: %s)", r.Context)
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

// CodeFromRequirements builds the generation prompt for a structured requirement list.
func CodeFromRequirements(reqs []RequirementLine) string {
	return "You are an expert React developer. Generate a complete, functional React component based on the following requirements.\n\n" +
		"Requirements:\n" + FormatRequirements(reqs) + "\n\n" + codeGuidelines
}

// CodeFromDescription builds the generation prompt for a named component and a free-text summary.
func CodeFromDescription(componentName, summary string) string {
	return "You are an expert React developer. Generate a complete, functional React component.\n\n" +
		"Component Name: " + componentName + "\n" +
		"Requirements: " + summary + "\n\n" + codeGuidelines
}

// AudioBatch accompanies a batch of meeting audio sent to a turn-based model.
const AudioBatch = "This is the latest audio from the meeting. Extract any UI requirements you hear using the available tools."
