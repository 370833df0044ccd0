// Package verdict turns free-form model output into the canonical
// structured critique shape. It is pure and never fails: unparseable
// output degrades to a fallback verdict carrying the raw text.
package verdict

// Dimensions is the fixed evaluation rubric. Every normalized verdict
// contains exactly these six dimension entries.
var Dimensions = []string{
	"relevance",
	"technical_credibility",
	"differentiation",
	"actionability",
	"trust_signals",
	"language_fit",
}

// DimensionScore is one scored rubric dimension with commentary.
type DimensionScore struct {
	Score      float64 `json:"score"`
	Commentary string  `json:"commentary"`
}

// Issue is one concrete problem the reviewer found in the document.
type Issue struct {
	Issue            string `json:"issue"`
	Example          string `json:"specific_example_from_content"`
	SuggestedRewrite string `json:"suggested_rewrite"`
}

// Verdict is the canonical structured output of a persona analysis.
type Verdict struct {
	PersonaRole       string                    `json:"persona_role,omitempty"`
	OverallScore      float64                   `json:"overall_score"`
	DimensionScores   map[string]DimensionScore `json:"dimension_scores"`
	TopIssues         []Issue                   `json:"top_3_issues"`
	WhatWorksWell     []string                  `json:"what_works_well"`
	OverallVerdict    string                    `json:"overall_verdict"`
	RewrittenHeadline string                    `json:"rewritten_headline_suggestion"`
}
