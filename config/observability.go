package config

import "strings"

// ObservabilityConfig groups configuration that controls metrics emission
// and operator alerting.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig
	Alerts  ObservabilityAlertsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Alerts.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityAlertsConfig controls where operator alerts for half-applied
// admin operations are delivered. A sink is active when its credential is
// set; with neither set, alerting is off.
type ObservabilityAlertsConfig struct {
	SlackWebhookURL     string `env:"OBSERVABILITY_ALERTS_SLACK_WEBHOOK_URL,unset"`
	SlackChannel        string `env:"OBSERVABILITY_ALERTS_SLACK_CHANNEL"`
	PagerDutyRoutingKey string `env:"OBSERVABILITY_ALERTS_PAGERDUTY_ROUTING_KEY,unset"`
}

// Sanitize normalises the alert sink fields.
func (c *ObservabilityAlertsConfig) Sanitize() {
	c.SlackWebhookURL = strings.TrimSpace(c.SlackWebhookURL)
	c.SlackChannel = strings.TrimSpace(c.SlackChannel)
	c.PagerDutyRoutingKey = strings.TrimSpace(c.PagerDutyRoutingKey)
}

// SlackEnabled reports whether the Slack sink is configured.
func (c *ObservabilityAlertsConfig) SlackEnabled() bool { return c.SlackWebhookURL != "" }

// PagerDutyEnabled reports whether the PagerDuty sink is configured.
func (c *ObservabilityAlertsConfig) PagerDutyEnabled() bool { return c.PagerDutyRoutingKey != "" }
