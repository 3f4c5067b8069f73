package ports

import "context"

// BeginInput carries inputs for initiating a social sign-in flow.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// SocialProvider initiates and completes a social sign-in flow against an
// external identity provider (Google, Facebook).
type SocialProvider interface {
	// Begin starts the flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the flow, verifying state and nonce, and returns the asserted identity.
	Exchange(ctx context.Context, in ExchangeInput) (SocialIdentity, error)
}
