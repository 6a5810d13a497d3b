package permission

import "testing"

func TestFormatPattern(t *testing.T) {
	tests := []struct {
		name string
		args map[string]string
		want string
	}{
		{"get_tasks", nil, "get_tasks"},
		{"get_tasks", map[string]string{}, "get_tasks"},
		{"update_task", map[string]string{"id": "42", "status": "done"}, "update_task(id=42,status=done)"},
		// keys sort, insertion order is irrelevant
		{"update_task", map[string]string{"status": "done", "id": "42"}, "update_task(id=42,status=done)"},
	}

	for _, tt := range tests {
		got := FormatPattern(tt.name, tt.args)
		if got != tt.want {
			t.Errorf("FormatPattern(%q, %v) = %q, want %q", tt.name, tt.args, got, tt.want)
		}
	}
}

func TestIsApproved_DenyWins(t *testing.T) {
	eval := NewEvaluator(StaticRules{
		Allow: []string{"update_task(*)"},
		Deny:  []string{"update_task(id=42,status=done)"},
	})

	if eval.IsApproved("update_task", map[string]string{"id": "42", "status": "done"}) {
		t.Error("deny rule should win over a matching allow rule")
	}
	if !eval.IsApproved("update_task", map[string]string{"id": "7", "status": "done"}) {
		t.Error("non-denied invocation should pass via the wildcard allow")
	}
}

func TestIsApproved_Wildcard(t *testing.T) {
	eval := NewEvaluator(StaticRules{
		Allow: []string{"mcp_search(*)"},
	})

	if !eval.IsApproved("mcp_search", map[string]string{"query": "anything"}) {
		t.Error("wildcard should approve any argument combination")
	}
	if eval.IsApproved("mcp_fetch", map[string]string{"query": "anything"}) {
		t.Error("wildcard should only cover its own action name")
	}
}

func TestIsApproved_BareName(t *testing.T) {
	eval := NewEvaluator(StaticRules{
		Allow: []string{"get_tasks"},
	})

	if !eval.IsApproved("get_tasks", nil) {
		t.Error("bare rule should approve an invocation without arguments")
	}
	if eval.IsApproved("get_tasks_extra", nil) {
		t.Error("bare rule must match the whole name, not a prefix")
	}
}

func TestIsApproved_SubstringFallback(t *testing.T) {
	// A bare rule against a parenthesized candidate falls through to
	// substring containment, so an argument fragment can match.
	eval := NewEvaluator(StaticRules{
		Deny: []string{"status=done"},
	})

	if eval.IsApproved("update_task", map[string]string{"id": "1", "status": "done"}) {
		t.Error("fragment deny rule should match inside the argument list")
	}
}

func TestIsApproved_DefaultDeny(t *testing.T) {
	eval := NewEvaluator(StaticRules{})

	if eval.IsApproved("anything", nil) {
		t.Error("absence from both sets must deny")
	}
}

func TestIsApproved_ReadsThrough(t *testing.T) {
	provider := &swappableRules{rules: RuleSet{}}
	eval := NewEvaluator(provider)

	if eval.IsApproved("get_tasks", nil) {
		t.Fatal("should start denied")
	}

	provider.rules = RuleSet{Allow: []string{"get_tasks"}}
	if !eval.IsApproved("get_tasks", nil) {
		t.Error("evaluator should pick up swapped rules without restart")
	}
}

type swappableRules struct {
	rules RuleSet
}

func (s *swappableRules) Rules() RuleSet { return s.rules }
