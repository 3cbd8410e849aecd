package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Evaluate.MutateSession != nil
}

func (s Service) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error) {
	return RunEvaluate(ctx, req, s.deps.Evaluate)
}

func (s Service) BeginChallenge(ctx context.Context, sessionID string) (*ChallengeResult, error) {
	return RunBeginChallenge(ctx, sessionID, s.deps.Challenge)
}

func (s Service) ResendChallenge(ctx context.Context, sessionID string) (*ChallengeResult, error) {
	return RunResendChallenge(ctx, sessionID, s.deps.Challenge)
}

func (s Service) VerifyChallenge(ctx context.Context, sessionID, code string) (*VerifyResult, error) {
	return RunVerifyChallenge(ctx, sessionID, code, s.deps.Challenge)
}

func (s Service) StartSession(ctx context.Context, principalID, contact string) (*StartSessionResult, error) {
	return RunStartSession(ctx, principalID, contact, s.deps.Lifecycle)
}

func (s Service) Authenticate(ctx context.Context, token string) (string, string, error) {
	return RunAuthenticate(ctx, token, s.deps.Lifecycle)
}

func (s Service) Logout(ctx context.Context, sessionID string) error {
	return RunLogout(ctx, sessionID, s.deps.Lifecycle)
}

func (s Service) ForgetPrincipal(ctx context.Context, principalID string) error {
	return RunForgetPrincipal(ctx, principalID, s.deps.Lifecycle)
}
