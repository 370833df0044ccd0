package analysis

import (
	"fmt"
	"log"

	"github.com/browsium/roundtable/backend/internal/config"
	"github.com/browsium/roundtable/backend/internal/model/review"
	"github.com/browsium/roundtable/backend/internal/service/ai"
)

// Plan is a fully resolved execution plan for one session run. Every
// backend in it has passed resolution; nothing downstream re-validates.
type Plan struct {
	Kind    review.WorkflowKind
	Default review.Backend

	// Council roles.
	Members  []review.Backend
	Reviewer review.Backend
	Chair    review.Backend

	// Discussion roles.
	Variants int
	Variant  review.Backend
}

// BuildPlan resolves a session's workflow configuration into a Plan.
// The session default backend must resolve or planning fails; role
// backends that fail resolution fall back to the default with a logged
// warning, so a bad chair override degrades rather than blocking a run.
func BuildPlan(sess *review.Session, gateway config.GatewayConfig) (Plan, error) {
	cfg, err := review.ParseWorkflowConfig(sess.Workflow, sess.WorkflowConfig)
	if err != nil {
		return Plan{}, err
	}

	def, err := ai.ResolveFirst(gateway.Providers,
		review.BackendRef{Provider: sess.DisplayProvider, Model: sess.DisplayModel},
		review.BackendRef{Provider: gateway.DefaultProvider, Model: gateway.DefaultModel},
	)
	if err != nil {
		return Plan{}, fmt.Errorf("resolving session backend: %w", err)
	}

	plan := Plan{Kind: cfg.Kind, Default: def}

	switch cfg.Kind {
	case review.WorkflowStandard:
		if !refEmpty(cfg.Standard.Backend) {
			plan.Default = resolveRole(sess.ID, "backend", &cfg.Standard.Backend, gateway.Providers, def)
		}

	case review.WorkflowCouncil:
		for i := range cfg.Council.Members {
			member := resolveRole(sess.ID, fmt.Sprintf("member[%d]", i), &cfg.Council.Members[i], gateway.Providers, def)
			plan.Members = append(plan.Members, member)
		}
		plan.Chair = resolveRole(sess.ID, "chair", cfg.Council.Chair, gateway.Providers, def)
		// Reviewer defaults to the chair rather than the session backend.
		plan.Reviewer = resolveRole(sess.ID, "reviewer", cfg.Council.Reviewer, gateway.Providers, plan.Chair)

	case review.WorkflowDiscussion:
		plan.Variants = cfg.Discussion.Variants
		plan.Variant = resolveRole(sess.ID, "backend", cfg.Discussion.Backend, gateway.Providers, def)
		plan.Chair = resolveRole(sess.ID, "chair", cfg.Discussion.Chair, gateway.Providers, def)
	}

	return plan, nil
}

// resolveRole resolves an optional role backend, falling back to def
// when the ref is absent or does not resolve.
func resolveRole(sessionID, role string, ref *review.BackendRef, allowlist []string, def review.Backend) review.Backend {
	if ref == nil || refEmpty(*ref) {
		return def
	}

	backend, err := ai.ResolveBackend(*ref, allowlist)
	if err != nil {
		log.Printf("[plan] session %s: %s backend %s/%s rejected (%v), using %s", sessionID, role, ref.Provider, ref.Model, err, def)
		return def
	}
	return backend
}

func refEmpty(ref review.BackendRef) bool {
	return ref.Provider == "" && ref.Model == ""
}
