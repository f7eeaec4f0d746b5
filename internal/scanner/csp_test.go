package scanner

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCSP(t *testing.T) {
	t.Parallel()

	raw := []byte("default-src 'self'; script-src 'self' 'nonce-r4nd0m' https://cdn.example * data: blob:https://x; upgrade-insecure-requests")
	policy, problems := ParseCSP(raw)
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %+v", problems)
	}

	want := Policy{
		"default-src": {"'self'": SourceKeyword},
		"script-src": {
			"'self'":              SourceKeyword,
			"'nonce-r4nd0m'":      SourceNonce,
			"https://cdn.example": SourceURL,
			"*":                   SourceWildcard,
			"data:":               SourceScheme,
			"blob:https://x":      SourceScheme,
		},
		"upgrade-insecure-requests": {},
	}
	if diff := cmp.Diff(want, policy); diff != "" {
		t.Errorf("policy mismatch (-want +got):\n%s", diff)
	}

	if got := policy.Nonces(); len(got) != 1 || got[0] != "r4nd0m" {
		t.Errorf("Nonces() = %v", got)
	}
	if !policy.Allows("HTTPS://CDN.EXAMPLE") {
		t.Error("Allows should match case-insensitively")
	}
}

func TestParseCSPProblems(t *testing.T) {
	t.Parallel()

	t.Run("duplicate directive is kept under a suffixed key", func(t *testing.T) {
		t.Parallel()
		policy, problems := ParseCSP([]byte("script-src 'self'; script-src https://evil.example"))
		if len(problems) != 1 || problems[0].Kind != ProblemDuplicate || problems[0].Directive != "script-src" {
			t.Fatalf("unexpected problems %+v", problems)
		}
		if _, ok := policy["script-src#2"]["https://evil.example"]; !ok {
			t.Errorf("duplicate not preserved: %v", policy)
		}
		if _, ok := policy["script-src"]["'self'"]; !ok {
			t.Errorf("first directive lost: %v", policy)
		}
	})

	t.Run("colliding counted name counts up from the base name", func(t *testing.T) {
		t.Parallel()
		policy, problems := ParseCSP([]byte("script-src a; script-src b; script-src#2 c"))
		want := Policy{
			"script-src":   {"a": SourceURL},
			"script-src#2": {"b": SourceURL},
			"script-src#3": {"c": SourceURL},
		}
		if diff := cmp.Diff(want, policy); diff != "" {
			t.Errorf("policy mismatch (-want +got):\n%s", diff)
		}
		if len(problems) != 2 || problems[1].Directive != "script-src" {
			t.Errorf("unexpected problems %+v", problems)
		}
	})

	t.Run("unparseable directive name", func(t *testing.T) {
		t.Parallel()
		policy, problems := ParseCSP([]byte("script_src 'self'; img-src *"))
		if len(problems) != 1 || problems[0].Kind != ProblemUnparseable {
			t.Fatalf("unexpected problems %+v", problems)
		}
		if _, ok := policy["img-src"]; !ok || len(policy) != 1 {
			t.Errorf("valid directive should survive: %v", policy)
		}
	})

	t.Run("unterminated quote", func(t *testing.T) {
		t.Parallel()
		policy, problems := ParseCSP([]byte("script-src 'self 'unsafe-inline'"))
		if len(problems) != 1 || problems[0].Kind != ProblemUnparseable {
			t.Fatalf("unexpected problems %+v", problems)
		}
		if _, ok := policy["script-src"]["'unsafe-inline'"]; !ok {
			t.Errorf("valid values should survive: %v", policy)
		}
	})

	t.Run("control bytes are dropped", func(t *testing.T) {
		t.Parallel()
		policy, problems := ParseCSP([]byte("scr\x00ipt-src\r 'self'\x7f"))
		if len(problems) != 0 {
			t.Fatalf("unexpected problems %+v", problems)
		}
		if _, ok := policy["script-src"]["'self'"]; !ok {
			t.Errorf("sanitized policy = %v", policy)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		policy, problems := ParseCSP(nil)
		if len(policy) != 0 || len(problems) != 0 {
			t.Errorf("expected empty result, got %v %v", policy, problems)
		}
	})
}

// TestParseCSPTrailingInvariance checks that trailing whitespace and
// semicolons never change the parsed map.
func TestParseCSPTrailingInvariance(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"default-src 'self'",
		"script-src 'nonce-abc' https://a.example; object-src 'none'",
		"img-src * data:;;",
		"script-src 'self'; script-src 'unsafe-eval'",
		"",
	}
	suffixes := []string{"", " ", ";", " ;", "; ", "\t", "\n", ";;  ;", "  \n; "}

	for _, in := range inputs {
		base, _ := ParseCSP([]byte(strings.TrimRight(in, " ;\t\n")))
		for _, suffix := range suffixes {
			got, _ := ParseCSP([]byte(in + suffix))
			if diff := cmp.Diff(base, got); diff != "" {
				t.Errorf("input %q + suffix %q changed the policy:\n%s", in, suffix, diff)
			}
		}
	}
}

// TestPolicyStringRoundTrip checks that rendering and re-parsing a policy
// yields the same map.
func TestPolicyStringRoundTrip(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"default-src 'self'; script-src 'self' 'nonce-xyz' https://cdn.example data: *",
		"upgrade-insecure-requests; block-all-mixed-content",
		"script-src a; script-src b; script-src c",
		"script-src a; script-src b; script-src#2 c",
		"script-src#2 a; script-src b; script-src c",
		"frame-ancestors 'none'",
		"",
	}

	for _, in := range inputs {
		first, _ := ParseCSP([]byte(in))
		second, problems := ParseCSP([]byte(first.String()))
		if len(problems) != 0 {
			t.Errorf("rendered policy %q has problems: %+v", first.String(), problems)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("round trip of %q changed the policy:\n%s", in, diff)
		}
	}
}

func FuzzParseCSP(f *testing.F) {
	f.Add([]byte("default-src 'self'; script-src 'nonce-a' *"))
	f.Add([]byte("script-src 'self; ;; a b c"))

	f.Fuzz(func(t *testing.T, raw []byte) {
		policy, _ := ParseCSP(raw)

		padded, _ := ParseCSP(append(append([]byte{}, raw...), " ; \n"...))
		if diff := cmp.Diff(policy, padded); diff != "" {
			t.Fatalf("trailing padding changed the policy:\n%s", diff)
		}

		again, _ := ParseCSP([]byte(policy.String()))
		if diff := cmp.Diff(policy, again); diff != "" {
			t.Fatalf("round trip changed the policy:\n%s", diff)
		}
	})
}
