package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/codelane/authdeck/config"
	"github.com/codelane/authdeck/internal/adapters/facebook"
	"github.com/codelane/authdeck/internal/adapters/identity"
	"github.com/codelane/authdeck/internal/adapters/memdir"
	"github.com/codelane/authdeck/internal/adapters/mongostore"
	"github.com/codelane/authdeck/internal/adapters/oidc"
	"github.com/codelane/authdeck/internal/adapters/pgaudit"
	redisadapter "github.com/codelane/authdeck/internal/adapters/redis"
	domainauth "github.com/codelane/authdeck/internal/domain/auth"
	"github.com/codelane/authdeck/internal/ports"
)

// Adapters bundles every port implementation the services need.
type Adapters struct {
	Directory      ports.Directory
	AdminDirectory ports.AdminDirectory
	Roles          ports.RoleStore
	Profiles       ports.ProfileStore
	Sessions       ports.SessionStore
	Stream         ports.AuthStateStream
	Audit          ports.AuditLog
	Providers      map[domainauth.ProviderID]ports.SocialProvider
}

// AdapterDeps holds the connections the adapters are built on.
type AdapterDeps struct {
	Config      *config.AppConfig
	MongoDB     *mongo.Database
	RedisClient redis.UniversalClient
	DB          *sql.DB
	Logger      *slog.Logger
}

// BuildAdapters wires the port implementations: the credential directory
// (platform client or the in-memory mock), the Mongo role and profile
// stores, the Redis session store and auth-state stream, the Postgres audit
// log, and the configured social providers.
func BuildAdapters(deps AdapterDeps) (Adapters, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	a := Adapters{
		Roles:    mongostore.NewRoleStore(deps.MongoDB),
		Profiles: mongostore.NewProfileStore(deps.MongoDB),
		Sessions: redisadapter.NewSessionStoreWithPrefix(deps.RedisClient, "session:"),
		Stream:   redisadapter.NewAuthStateStream(deps.RedisClient, logger),
		Audit:    pgaudit.NewRepo(deps.DB),
	}

	directory, adminDirectory, err := buildDirectory(cfg, a.Roles, logger)
	if err != nil {
		return Adapters{}, err
	}
	a.Directory = directory
	a.AdminDirectory = adminDirectory

	providers, err := buildSocialProviders(cfg.Auth, logger)
	if err != nil {
		return Adapters{}, err
	}
	a.Providers = providers

	return a, nil
}

// buildDirectory picks the credential directory per AUTH_MODE. The platform
// client holds the service-account credential; it stays inside the process
// and is never handed to the HTTP layer.
func buildDirectory(
	cfg *config.AppConfig,
	roles ports.RoleStore,
	logger *slog.Logger,
) (ports.Directory, ports.AdminDirectory, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		dir := memdir.New()
		seedMockAdmin(dir, roles, cfg.Auth.Mock, logger)
		return dir, dir, nil

	case config.AuthModePlatform:
		client, err := identity.NewClient(identity.Config{
			BaseURL:                  cfg.Identity.BaseURL,
			ProjectID:                cfg.Identity.ProjectID,
			APIKey:                   cfg.Identity.APIKey,
			ServiceAccountEmail:      cfg.Identity.ServiceAccountEmail,
			ServiceAccountPrivateKey: cfg.Identity.ServiceAccountPrivateKey,
			TokenURL:                 cfg.Identity.TokenURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build identity client: %w", err)
		}
		return client, client, nil

	default:
		return nil, nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

// seedMockAdmin provisions the bootstrap admin in the in-memory directory so
// a fresh dev environment has someone who can reach the console.
func seedMockAdmin(dir *memdir.Directory, roles ports.RoleStore, cfg config.MockDirectoryConfig, logger *slog.Logger) {
	id := dir.Seed(cfg.AdminEmail, cfg.AdminPassword)
	ctx, cancel := contextWithConnectTimeout()
	defer cancel()
	if err := roles.SetRole(ctx, id, domainauth.RoleAdmin, "bootstrap"); err != nil {
		logger.Warn("seed mock admin role failed", "email", cfg.AdminEmail, "error", err)
		return
	}
	logger.Info("seeded mock directory admin", "email", cfg.AdminEmail)
}

// buildSocialProviders builds a provider per configured OAuth client. An
// unconfigured provider is skipped with a notice rather than an error: email
// sign-in works without any of them.
func buildSocialProviders(cfg config.AuthConfig, logger *slog.Logger) (map[domainauth.ProviderID]ports.SocialProvider, error) {
	providers := make(map[domainauth.ProviderID]ports.SocialProvider)

	if cfg.Google.Configured() {
		google, err := oidc.NewProvider(oidc.ProviderConfig{
			ProviderID:   domainauth.ProviderGoogle,
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			DiscoveryURL: cfg.Google.DiscoveryURL,
		})
		if err != nil {
			return nil, fmt.Errorf("build google provider: %w", err)
		}
		providers[domainauth.ProviderGoogle] = google
	} else {
		logger.Info("google sign-in disabled: client credentials not configured")
	}

	if cfg.Facebook.Configured() {
		fb, err := facebook.NewProvider(facebook.ProviderConfig{
			ClientID:     cfg.Facebook.ClientID,
			ClientSecret: cfg.Facebook.ClientSecret,
			RedirectURL:  cfg.Facebook.RedirectURL,
		})
		if err != nil {
			return nil, fmt.Errorf("build facebook provider: %w", err)
		}
		providers[domainauth.ProviderFacebook] = fb
	} else {
		logger.Info("facebook sign-in disabled: client credentials not configured")
	}

	return providers, nil
}

func contextWithConnectTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), connectTimeout)
}

// verificationPolicy translates the configured exemption list into the
// domain policy. Provider names are accepted with or without the ".com"
// suffix the directory uses.
func verificationPolicy(exempt []string) domainauth.VerificationPolicy {
	var policy domainauth.VerificationPolicy
	for _, name := range exempt {
		switch name {
		case "google", "google.com":
			policy.ExemptProviders = append(policy.ExemptProviders, domainauth.ProviderGoogle)
		case "facebook", "facebook.com":
			policy.ExemptProviders = append(policy.ExemptProviders, domainauth.ProviderFacebook)
		case "password":
			policy.ExemptProviders = append(policy.ExemptProviders, domainauth.ProviderPassword)
		}
	}
	return policy
}
