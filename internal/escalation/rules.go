package escalation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/rendis/handoff/pkg/schema"
)

// Rule re-routes an escalation to a different reason when its CEL
// predicate matches. Rules let operators tighten routing without a
// deploy, e.g. `question.contains("chest pain")` => emergency.
type Rule struct {
	Expression string                  `json:"expression"`
	Reason     schema.EscalationReason `json:"reason"`
}

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// Rules is an ordered CEL rule set evaluated against an escalation
// request. The first matching rule wins; no match keeps the incoming
// reason. Thread-safe: programs are compiled once at construction.
type Rules struct {
	rules  []compiledRule
	logger *slog.Logger
}

// NewRules compiles the rule set. The environment exposes three
// variables: question (string), reason (string) and results (int, the
// search result count, -1 when unknown).
func NewRules(rules []Rule, logger *slog.Logger) (*Rules, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env, err := cel.NewEnv(
		cel.Variable("question", cel.StringType),
		cel.Variable("reason", cel.StringType),
		cel.Variable("results", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if !schema.ValidReason(r.Reason) {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"rule %q routes to unknown reason %q", r.Expression, r.Reason)
		}
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"compile rule %q: %s", r.Expression, issues.Err().Error()).WithCause(issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("build rule program %q: %w", r.Expression, err)
		}
		compiled = append(compiled, compiledRule{rule: r, program: prg})
	}

	return &Rules{rules: compiled, logger: logger}, nil
}

// Route returns the reason the request should be handled under. A rule
// that fails to evaluate is skipped: routing is advisory and must not
// block an escalation.
func (r *Rules) Route(ctx context.Context, req Request) schema.EscalationReason {
	if r == nil || len(r.rules) == 0 {
		return req.Reason
	}

	results := -1
	if req.SearchResultsCount != nil {
		results = *req.SearchResultsCount
	}
	activation := map[string]any{
		"question": req.Question,
		"reason":   string(req.Reason),
		"results":  results,
	}

	for _, cr := range r.rules {
		out, _, err := cr.program.Eval(activation)
		if err != nil {
			r.logger.WarnContext(ctx, "escalation rule evaluation failed",
				"expression", cr.rule.Expression, "error", err)
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return cr.rule.Reason
		}
	}
	return req.Reason
}
