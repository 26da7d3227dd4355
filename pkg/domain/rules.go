package domain

import (
	"context"
	"fmt"
)

// RuleView provides read-only access to domain entities for rule evaluation.
type RuleView = TransactionView

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// DefaultRulesEngine returns an engine with the record integrity rules.
func DefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(SchemaConformanceRule())
	engine.Register(ImmutableIdentityRule())
	return engine
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		combined.Merge(res)
	}
	return combined, nil
}

type schemaConformanceRule struct{}

// SchemaConformanceRule blocks created or updated records whose attributes do
// not satisfy the schema of their category.
func SchemaConformanceRule() Rule {
	return schemaConformanceRule{}
}

func (schemaConformanceRule) Name() string { return "schema_conformance" }

func (r schemaConformanceRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	var res Result
	registry := view.Registry()
	for _, change := range changes {
		if change.Entity != EntityRecord || change.Action == ActionDelete {
			continue
		}
		record, ok := change.After.(Record)
		if !ok {
			continue
		}
		violations, err := registry.Validate(record.Category, record.Attributes)
		if err != nil {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  err.Error(),
				Entity:   EntityRecord,
				EntityID: record.ID,
			})
			continue
		}
		for _, v := range violations {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  v.String(),
				Entity:   EntityRecord,
				EntityID: record.ID,
			})
		}
	}
	return res, nil
}

type immutableIdentityRule struct{}

// ImmutableIdentityRule blocks updates that move a record to another parent
// or category.
func ImmutableIdentityRule() Rule {
	return immutableIdentityRule{}
}

func (immutableIdentityRule) Name() string { return "immutable_identity" }

func (r immutableIdentityRule) Evaluate(_ context.Context, _ RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		if change.Entity != EntityRecord || change.Action != ActionUpdate {
			continue
		}
		before, okBefore := change.Before.(Record)
		after, okAfter := change.After.(Record)
		if !okBefore || !okAfter {
			continue
		}
		if before.ParentID != after.ParentID {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("parent_id cannot change from %q to %q", before.ParentID, after.ParentID),
				Entity:   EntityRecord,
				EntityID: after.ID,
			})
		}
		if before.Category != after.Category {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("category cannot change from %s to %s", before.Category, after.Category),
				Entity:   EntityRecord,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}
