package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/codelane/authdeck/config"
	"github.com/codelane/authdeck/internal/observability/notify/pagerduty"
	"github.com/codelane/authdeck/internal/observability/notify/slack"
	"github.com/codelane/authdeck/internal/observability/statsd"
	"github.com/codelane/authdeck/internal/service"
	"github.com/codelane/authdeck/internal/service/failurenotifier"
)

// ServiceContainer holds all initialized services.
type ServiceContainer struct {
	Auth     *service.AuthService
	Accounts *service.AccountsService
	Admin    *service.AdminService
	Mirror   *service.SessionMirror

	Metrics *statsd.Client
}

// ServiceDeps contains what the services are built from.
type ServiceDeps struct {
	Config   *config.AppConfig
	Adapters Adapters
	Logger   *slog.Logger
}

// NewServices creates the service layer over the built adapters.
func NewServices(deps ServiceDeps) (ServiceContainer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	a := deps.Adapters

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  "authdeck",
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build statsd client: %w", err)
	}

	auth := service.NewAuthService(service.AuthServiceOptions{
		Directory:  a.Directory,
		Sessions:   a.Sessions,
		Roles:      a.Roles,
		Stream:     a.Stream,
		Providers:  a.Providers,
		Policy:     verificationPolicy(cfg.Auth.VerificationExemptProviders),
		SessionTTL: cfg.Auth.SessionTTL,
		Logger:     logger,
		Metrics:    metrics,
	})

	accounts := service.NewAccountsService(service.AccountsServiceOptions{
		Directory: a.Directory,
		Profiles:  a.Profiles,
		Roles:     a.Roles,
		Sessions:  a.Sessions,
		Stream:    a.Stream,
		Logger:    logger,
	})

	notifier, err := buildFailureNotifier(cfg, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	admin := service.NewAdminService(service.AdminServiceOptions{
		Directory: a.AdminDirectory,
		Tokens:    a.Directory,
		Roles:     a.Roles,
		Profiles:  a.Profiles,
		Sessions:  a.Sessions,
		Audit:     a.Audit,
		Stream:    a.Stream,
		Logger:    logger,
		Metrics:   metrics,
		Notifier:  notifier,
	})

	mirror := service.NewSessionMirror(a.Sessions, a.Roles, a.Stream, logger)

	if notifier.Enabled() {
		logger.Info("operator alerting enabled",
			"slack", cfg.Observability.Alerts.SlackEnabled(),
			"pagerduty", cfg.Observability.Alerts.PagerDutyEnabled())
	}

	return ServiceContainer{
		Auth:     auth,
		Accounts: accounts,
		Admin:    admin,
		Mirror:   mirror,
		Metrics:  metrics,
	}, nil
}

// buildFailureNotifier assembles the operator alert sinks from config. The
// returned service is never nil; with no sinks configured it is a no-op.
func buildFailureNotifier(cfg *config.AppConfig, logger *slog.Logger) (*failurenotifier.Service, error) {
	var sinks []failurenotifier.SinkRegistration

	alerts := cfg.Observability.Alerts
	if alerts.SlackEnabled() {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:       alerts.SlackWebhookURL,
			Channel:          alerts.SlackChannel,
			ConsoleURLPrefix: consoleURLPrefix(cfg.HTTP.BaseURL),
		})
		if err != nil {
			return nil, fmt.Errorf("build slack sink: %w", err)
		}
		sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
	}

	if alerts.PagerDutyEnabled() {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: alerts.PagerDutyRoutingKey,
		})
		if err != nil {
			return nil, fmt.Errorf("build pagerduty sink: %w", err)
		}
		sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: logger,
		Sinks:  sinks,
	}), nil
}

// consoleURLPrefix derives the link prefix for admin console deep links in
// alert messages.
func consoleURLPrefix(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/admin/users"
}
