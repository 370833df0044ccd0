package persona

import "encoding/json"

// Persona is a named evaluation viewpoint applied to submitted documents.
// Profile carries the full rubric handed to the model verbatim; the typed
// fields are the subset the API and prompts need directly.
type Persona struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Role       string          `json:"role"`
	IsSystem   bool            `json:"isSystem"`
	IsCustom   bool            `json:"isCustom"`
	OwnerEmail string          `json:"ownerEmail,omitempty"`
	Profile    json.RawMessage `json:"profile"`
}

// Seed provides the default reviewer panel used when the personas
// directory is absent or empty.
func Seed() []Persona {
	seeds := []struct {
		id, name, role string
		profile        map[string]any
	}{
		{
			id:   "skeptical-ciso",
			name: "Dana Reyes",
			role: "Chief Information Security Officer",
			profile: map[string]any{
				"priorities":  []string{"risk reduction", "vendor accountability", "compliance posture"},
				"pain_points": []string{"breach liability", "tool sprawl", "vendors overstating certifications"},
				"red_flags":   []string{"military-grade encryption", "unbreakable", "AI-powered security"},
				"voice":       "blunt, evidence-first, allergic to marketing superlatives",
			},
		},
		{
			id:   "pragmatic-devops-lead",
			name: "Marcus Okafor",
			role: "DevOps Team Lead",
			profile: map[string]any{
				"priorities":  []string{"deployment speed", "observability", "on-call sanity"},
				"pain_points": []string{"tools that demand platform rewrites", "hidden per-seat pricing", "docs written for executives"},
				"red_flags":   []string{"seamless integration", "zero configuration", "single pane of glass"},
				"voice":       "practical, wants commands and numbers, skims anything longer than a page",
			},
		},
		{
			id:   "budget-owner-cfo",
			name: "Priya Subramanian",
			role: "Chief Financial Officer",
			profile: map[string]any{
				"priorities":  []string{"total cost of ownership", "measurable ROI", "contract flexibility"},
				"pain_points": []string{"shelfware", "multi-year lock-in", "ROI claims with no baseline"},
				"red_flags":   []string{"industry-leading", "up to 10x savings", "priceless"},
				"voice":       "numbers-driven, asks what happens at renewal, distrusts unquantified benefits",
			},
		},
	}

	out := make([]Persona, 0, len(seeds))
	for _, s := range seeds {
		profile := map[string]any{
			"id":   s.id,
			"name": s.name,
			"role": s.role,
		}
		for k, v := range s.profile {
			profile[k] = v
		}
		raw, _ := json.Marshal(profile)
		out = append(out, Persona{
			ID:       s.id,
			Name:     s.name,
			Role:     s.role,
			IsSystem: true,
			Profile:  raw,
		})
	}
	return out
}
