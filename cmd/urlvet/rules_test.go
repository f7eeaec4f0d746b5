package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/urlvet/internal/config"
	"github.com/nao1215/urlvet/internal/model"
)

func runRules(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"rules"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRulesCmd(t *testing.T) {
	t.Parallel()

	t.Run("prints every rule", func(t *testing.T) {
		t.Parallel()

		out, err := runRules(t, "--config", writeTestConfig(t, "sites: {}\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		rules := model.NewRuleBook().Rules()
		if len(lines) != len(rules)+1 {
			t.Fatalf("expected header plus %d rules, got %d lines", len(rules), len(lines))
		}
		if fields := strings.Fields(lines[0]); strings.Join(fields, " ") != "ID CATEGORY SEVERITY PENALTY MESSAGE" {
			t.Errorf("unexpected header %q", lines[0])
		}
		if !strings.Contains(out, "redirect.loop") || !strings.Contains(out, "critical") {
			t.Error("expected the redirect loop rule with its severity")
		}
	})

	t.Run("applies config overrides", func(t *testing.T) {
		t.Parallel()

		path := writeTestConfig(t, "rules:\n  header.missing_hsts:\n    severity: info\n    penalty: 0\n")
		out, err := runRules(t, "--config", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, line := range strings.Split(out, "\n") {
			fields := strings.Fields(line)
			if len(fields) > 3 && fields[0] == "header.missing_hsts" {
				if fields[2] != "info" || fields[3] != "0" {
					t.Errorf("override not applied: %q", line)
				}
				return
			}
		}
		t.Error("header.missing_hsts not listed")
	})

	t.Run("markdown table", func(t *testing.T) {
		t.Parallel()

		out, err := runRules(t, "--markdown", "--config", writeTestConfig(t, "sites: {}\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(out, "# urlvet Rules") {
			t.Errorf("unexpected markdown:\n%s", out)
		}
		found := false
		for _, line := range strings.Split(out, "\n") {
			if strings.Contains(line, "`host.non_https`") {
				found = strings.Contains(line, "critical") && strings.Contains(line, "-100")
			}
		}
		if !found {
			t.Errorf("expected the non-HTTPS row, got:\n%s", out)
		}
	})

	t.Run("missing explicit config", func(t *testing.T) {
		t.Parallel()

		_, err := runRules(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("rejects arguments", func(t *testing.T) {
		t.Parallel()

		if _, err := runRules(t, "extra"); err == nil {
			t.Error("expected an error for positional arguments")
		}
	})
}
