package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRequirements(t *testing.T) {
	got := FormatRequirements([]RequirementLine{
		{ComponentType: "form", Description: "signup form", Context: "email + password"},
		{ComponentType: "button", Description: "submit"},
	})
	assert.Equal(t, "1. [form] signup form (Context: email + password)\n2. [button] submit", got)
}

func TestCodeFromRequirementsIsDeterministic(t *testing.T) {
	reqs := []RequirementLine{{ComponentType: "table", Description: "orders"}}
	a := CodeFromRequirements(reqs)
	b := CodeFromRequirements(reqs)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "Requirements:\n1. [table] orders\n")
	assert.True(t, strings.HasSuffix(a, "just the raw TypeScript/React code."))
}

func TestCodeFromDescription(t *testing.T) {
	p := CodeFromDescription("SignupForm", "email, password, submit")
	assert.Contains(t, p, "Component Name: SignupForm\n")
	assert.Contains(t, p, "Requirements: email, password, submit\n")
}
