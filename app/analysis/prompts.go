package analysis

import (
	"fmt"
)

const summaryPromptTemplate = `Summarize the following article concisely in 2-3 sentences. Reply with the summary only, no preamble.

%s

Summary:`

const detailedPromptTemplate = `Analyze the following article in detail. Structure your response under exactly these headers:

Key Points:
Technical Details:
Impact Assessment:
Related Concepts:
Recommendations:

If a section does not apply, leave it empty. Do not add other headers.

Article:
%s`

const securityPromptTemplate = `Extract potential Indicators of Compromise (IOCs) from the following security article and, if applicable, create a Sigma detection rule.

Article:
%s

Instructions:
1. List every potential IOC (IP addresses, domains, URLs, file hashes) as a bulleted list, one indicator per line, with a short context note after the value.
2. If the article describes detectable behavior, append a Sigma rule as a YAML code block with title, description, status, level and detection fields.
3. If no Sigma rule is applicable, state "No applicable Sigma rule." instead of a YAML block.`

// BuildPrompt renders the type-specific prompt template around the
// entry content.
func BuildPrompt(analysisType Type, content string) string {
	switch analysisType {
	case TypeSummarize:
		return fmt.Sprintf(summaryPromptTemplate, content)
	case TypeDetailed:
		return fmt.Sprintf(detailedPromptTemplate, content)
	case TypeSecurity:
		return fmt.Sprintf(securityPromptTemplate, content)
	}
	return content
}
