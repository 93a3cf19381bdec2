package analysis

import (
	"strings"
	"testing"
)

func TestBuildPrompt_EmbedsContent(t *testing.T) {
	for _, analysisType := range []Type{TypeSummarize, TypeDetailed, TypeSecurity} {
		prompt := BuildPrompt(analysisType, "ARTICLE BODY HERE")
		if !strings.Contains(prompt, "ARTICLE BODY HERE") {
			t.Errorf("%s: expected content embedded in prompt", analysisType)
		}
	}
}

func TestBuildPrompt_DetailedListsAllHeaders(t *testing.T) {
	prompt := BuildPrompt(TypeDetailed, "body")

	for _, header := range []string{"Key Points:", "Technical Details:", "Impact Assessment:", "Related Concepts:", "Recommendations:"} {
		if !strings.Contains(prompt, header) {
			t.Errorf("Expected detailed prompt to request header %q", header)
		}
	}
}

func TestBuildPrompt_SecurityRequestsSigma(t *testing.T) {
	prompt := BuildPrompt(TypeSecurity, "body")

	if !strings.Contains(prompt, "Sigma") {
		t.Error("Expected security prompt to request a Sigma rule")
	}
	if !strings.Contains(prompt, "No applicable Sigma rule.") {
		t.Error("Expected security prompt to define the no-rule phrasing")
	}
}
