package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// analysisSystemPrompt frames the reviewer roundtable. The persona
// profile JSON is embedded verbatim so custom profile fields reach the
// model without schema coupling.
const analysisSystemPrompt = `<persona>
%s
</persona>

<role_instruction>
You are embodying the persona described above. You are attending a marketing review roundtable. Your job is to critically evaluate the following marketing content from your professional perspective. Be direct. Be specific. Do not soften your feedback. The team wants honest, constructive criticism that will make their marketing better, not validation.
</role_instruction>

<evaluation_framework>
Score each dimension 1-10 and provide specific commentary:
1. Relevance to my role: Does this speak to my actual priorities and pain points?
2. Technical credibility: Is it accurate? Does it avoid buzzword-stuffing?
3. Differentiation: Can I tell how this is different from competitors?
4. Actionability: Do I know what to do next after reading this?
5. Trust signals: Does this build or erode my trust? Why?
6. Language fit: Does this sound like it was written by someone who understands my world?
</evaluation_framework>

<output_format>
Respond in this exact JSON structure:
{
  "persona_role": "%s",
  "overall_score": <1-10>,
  "dimension_scores": {
    "relevance": {"score": <1-10>, "commentary": "..."},
    "technical_credibility": {"score": <1-10>, "commentary": "..."},
    "differentiation": {"score": <1-10>, "commentary": "..."},
    "actionability": {"score": <1-10>, "commentary": "..."},
    "trust_signals": {"score": <1-10>, "commentary": "..."},
    "language_fit": {"score": <1-10>, "commentary": "..."}
  },
  "top_3_issues": [
    {"issue": "...", "specific_example_from_content": "...", "suggested_rewrite": "..."}
  ],
  "what_works_well": ["...", "..."],
  "overall_verdict": "Would I engage further based on this content? Why or why not?",
  "rewritten_headline_suggestion": "..."
}
</output_format>

Respond with ONLY the JSON. No markdown code blocks, no explanations, just valid JSON.`

// BuildAnalysisPrompt returns the system prompt and user message for one
// persona analysis. The document is truncated to maxChars to stay inside
// provider token limits.
func BuildAnalysisPrompt(profile json.RawMessage, role, document string, maxChars int) (string, []Message) {
	if maxChars > 0 && len(document) > maxChars {
		// Back up to a rune boundary so the cut never leaves a split
		// multi-byte sequence at the end.
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(document[cut]) {
			cut--
		}
		document = document[:cut]
	}
	system := fmt.Sprintf(analysisSystemPrompt, string(profile), role)
	user := Message{Role: "user", Content: "<marketing_content>\n" + document + "\n</marketing_content>"}
	return system, []Message{user}
}

// BuildVariantPrompt is the discussion flavor of the analysis prompt: the
// same role, nudged toward an independent stance per variant.
func BuildVariantPrompt(profile json.RawMessage, role, document string, variant, maxChars int) (string, []Message) {
	system, messages := BuildAnalysisPrompt(profile, role, document, maxChars)
	system += fmt.Sprintf("\n\nYou are independent reviewer #%d holding this role. Form your own view; do not hedge toward a consensus position.", variant)
	return system, messages
}

// BuildCouncilReviewPrompt asks the reviewer backend to rank and critique
// the usable member candidates for one persona.
func BuildCouncilReviewPrompt(role string, candidates []json.RawMessage) (string, []Message) {
	system := fmt.Sprintf(`You are the peer reviewer on a marketing review council. Several models have independently produced a structured critique for the persona %q. Rank the candidates from strongest to weakest and note concrete flaws or omissions in each. Respond with ONLY JSON: {"ranking": [<candidate indices, best first>], "critiques": [{"candidate": <index>, "notes": "..."}]}.`, role)

	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "<candidate index=\"%d\">\n%s\n</candidate>\n", i, string(c))
	}
	return system, []Message{{Role: "user", Content: b.String()}}
}

// BuildCouncilChairPrompt asks the chair backend to synthesize the final
// verdict from the candidates and the peer review.
func BuildCouncilChairPrompt(role string, candidates []json.RawMessage, peerReview string) (string, []Message) {
	system := fmt.Sprintf(`You are the chair of a marketing review council for the persona %q. Synthesize the candidate critiques below, informed by the peer review, into one final verdict. Keep the strongest specific observations, drop redundant ones, and reconcile conflicting scores with judgment rather than averaging blindly. Respond with ONLY the JSON verdict in the same structure as the candidates: overall_score, dimension_scores (relevance, technical_credibility, differentiation, actionability, trust_signals, language_fit), top_3_issues, what_works_well, overall_verdict, rewritten_headline_suggestion.`, role)

	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "<candidate index=\"%d\">\n%s\n</candidate>\n", i, string(c))
	}
	if peerReview != "" {
		fmt.Fprintf(&b, "<peer_review>\n%s\n</peer_review>\n", peerReview)
	}
	return system, []Message{{Role: "user", Content: b.String()}}
}

// BuildCritiquePrompt asks one discussion variant to critique another
// variant's verdict.
func BuildCritiquePrompt(role string, fromVariant, targetVariant int, targetVerdict json.RawMessage) (string, []Message) {
	system := fmt.Sprintf(`You are independent reviewer #%d holding the role %q in a discussion panel. Another reviewer holding the same role produced the verdict below. Critique it: identify scores you disagree with, observations you find weak or missing, and anything you would defend against it. Respond with ONLY JSON: {"agreements": ["..."], "disagreements": [{"point": "...", "reason": "..."}], "missed": ["..."]}.`, fromVariant, role)

	user := fmt.Sprintf("<verdict reviewer=\"%d\">\n%s\n</verdict>", targetVariant, string(targetVerdict))
	return system, []Message{{Role: "user", Content: user}}
}

// BuildDiscussionChairPrompt asks the chair to reconcile all variant
// verdicts and critiques into one final verdict plus dissent notes.
func BuildDiscussionChairPrompt(role string, verdicts []json.RawMessage, critiques []json.RawMessage) (string, []Message) {
	system := fmt.Sprintf(`You are the chair of a discussion panel where %d independent reviewers held the role %q. Using their verdicts and the cross-critiques below, produce a single reconciled verdict, and record every unreconciled point as a dissent naming which reviewer raised it and why you excluded it. Respond with ONLY JSON: {"final_verdict": {<verdict in the standard structure: overall_score, dimension_scores, top_3_issues, what_works_well, overall_verdict, rewritten_headline_suggestion>}, "dissents": [{"variant": <reviewer number>, "point": "...", "reason_excluded": "..."}]}.`, len(verdicts), role)

	var b strings.Builder
	for i, v := range verdicts {
		fmt.Fprintf(&b, "<verdict reviewer=\"%d\">\n%s\n</verdict>\n", i+1, string(v))
	}
	for _, c := range critiques {
		fmt.Fprintf(&b, "<critique>\n%s\n</critique>\n", string(c))
	}
	return system, []Message{{Role: "user", Content: b.String()}}
}
