package verdict

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// Parse extracts a verdict object from raw model output and normalizes it
// into the canonical shape. Extraction tries, in order: a fenced code
// block, the whole trimmed text, and the substring between the first '{'
// and the last '}'. If nothing parses, the result is a fallback verdict
// whose overall_verdict is the raw text and whose scores are all zero.
func Parse(raw string) Verdict {
	v, ok := TryParse(raw)
	if !ok {
		return Fallback(raw)
	}
	return v
}

// TryParse is Parse without the fallback: ok is false when no JSON
// object could be extracted from raw.
func TryParse(raw string) (Verdict, bool) {
	obj, ok := ExtractObject(raw)
	if !ok {
		return Verdict{}, false
	}
	return FromObject(obj), true
}

// Fallback builds the zero-score verdict carrying raw output verbatim.
func Fallback(raw string) Verdict {
	v := Verdict{
		OverallVerdict: raw,
		TopIssues:      []Issue{},
		WhatWorksWell:  []string{},
	}
	v.DimensionScores = emptyDimensions()
	return v
}

// ExtractObject runs the extraction ladder alone, for callers whose
// payload wraps more than a bare verdict.
func ExtractObject(raw string) (map[string]any, bool) {
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		if obj, ok := decodeObject(m[1]); ok {
			return obj, true
		}
	}

	if obj, ok := decodeObject(raw); ok {
		return obj, true
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		if obj, ok := decodeObject(raw[start : end+1]); ok {
			return obj, true
		}
	}

	return nil, false
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// FromObject coerces a loosely shaped object into the canonical verdict:
// all six dimensions present, numeric strings converted, bare dimension
// numbers wrapped, top_3_issues capped at three entries, arrays non-nil.
func FromObject(obj map[string]any) Verdict {
	v := Verdict{
		PersonaRole:       asString(obj["persona_role"]),
		OverallScore:      asNumber(obj["overall_score"]),
		OverallVerdict:    asString(obj["overall_verdict"]),
		RewrittenHeadline: asString(obj["rewritten_headline_suggestion"]),
		DimensionScores:   emptyDimensions(),
		TopIssues:         []Issue{},
		WhatWorksWell:     []string{},
	}

	if dims, ok := obj["dimension_scores"].(map[string]any); ok {
		for _, name := range Dimensions {
			entry, ok := dims[name]
			if !ok {
				continue
			}
			switch val := entry.(type) {
			case map[string]any:
				v.DimensionScores[name] = DimensionScore{
					Score:      asNumber(val["score"]),
					Commentary: asString(val["commentary"]),
				}
			default:
				// Bare numbers (or numeric strings) are wrapped.
				v.DimensionScores[name] = DimensionScore{Score: asNumber(val)}
			}
		}
	}

	if issues, ok := obj["top_3_issues"].([]any); ok {
		for _, entry := range issues {
			if len(v.TopIssues) == 3 {
				break
			}
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			v.TopIssues = append(v.TopIssues, Issue{
				Issue:            asString(item["issue"]),
				Example:          asString(item["specific_example_from_content"]),
				SuggestedRewrite: asString(item["suggested_rewrite"]),
			})
		}
	}

	if works, ok := obj["what_works_well"].([]any); ok {
		for _, entry := range works {
			if s := asString(entry); s != "" {
				v.WhatWorksWell = append(v.WhatWorksWell, s)
			}
		}
	}

	return v
}

func emptyDimensions() map[string]DimensionScore {
	dims := make(map[string]DimensionScore, len(Dimensions))
	for _, name := range Dimensions {
		dims[name] = DimensionScore{}
	}
	return dims
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

func asNumber(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	case bool:
		if val {
			return 1
		}
	}
	return 0
}
