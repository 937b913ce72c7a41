package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestBillingAlertRules(t *testing.T) {
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "billing.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var doc alertSpec
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}

	var billingGroup *alertGroup
	for i := range doc.Groups {
		if doc.Groups[i].Name == "billing" {
			billingGroup = &doc.Groups[i]
			break
		}
	}
	if billingGroup == nil {
		t.Fatal("billing alert group missing")
	}

	expected := map[string]struct {
		severity string
		runbook  string
	}{
		"HighErrorRate":         {severity: "critical", runbook: "docs/runbook-billing.md#high-error-rate"},
		"InvoiceCommitFailures": {severity: "warning", runbook: "docs/runbook-billing.md#commit-failures"},
		"ReportCacheMissSpike":  {severity: "warning", runbook: "docs/runbook-billing.md#report-cache"},
	}
	if len(billingGroup.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(billingGroup.Rules))
	}

	// Every expression must reference a metric the service actually exports.
	exported := scrapeNames(t)
	for _, rule := range billingGroup.Rules {
		want, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != want.severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if rule.Annotations["runbook"] != want.runbook {
			t.Fatalf("rule %s runbook mismatch: %s", rule.Alert, rule.Annotations["runbook"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
		if rule.For == "" {
			t.Fatalf("rule %s must define a hold duration", rule.Alert)
		}
		found := false
		for _, name := range exported {
			if strings.Contains(rule.Expr, name) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("rule %s expression references no exported metric: %s", rule.Alert, rule.Expr)
		}
	}
}

func scrapeNames(t *testing.T) []string {
	t.Helper()
	metrics := NewMetrics()
	metrics.requestsTotal.WithLabelValues("/healthz", "200").Inc()
	metrics.ObserveCommit("invoicing", "failed", 0)
	metrics.ObserveReportCache(false)
	families, err := metrics.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	return names
}
