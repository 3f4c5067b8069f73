package pagerduty

import (
	"strings"
	"testing"
	"time"

	"github.com/codelane/authdeck/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{
		RoutingKey: "key",
		Source:     "",
		Component:  "",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alert := notify.OperatorAlert{
		Action:   "disable_user",
		ActorID:  "admin-1",
		TargetID: "u-1",
		Error:    "boom",
	}
	event := client.buildEvent(alert)

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	if payloadSection["severity"] != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %v", payloadSection["severity"])
	}
	if payloadSection["source"] != "authdeck" {
		t.Fatalf("expected default source, got %v", payloadSection["source"])
	}
	if payloadSection["component"] != "admin" {
		t.Fatalf("expected default component, got %v", payloadSection["component"])
	}

	custom, ok := payloadSection["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}

	required := []string{"action", "actor_id", "target_id", "error"}
	for _, key := range required {
		if _, exists := custom[key]; !exists {
			t.Fatalf("expected key %s in custom details", key)
		}
	}

	dedup, _ := event["dedup_key"].(string)
	if !strings.Contains(dedup, "u-1") {
		t.Fatalf("expected dedup key to reference target id, got %s", dedup)
	}
	if !strings.Contains(dedup, "disable_user") {
		t.Fatalf("expected dedup key to reference action, got %s", dedup)
	}
}
