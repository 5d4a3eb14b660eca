package recovery

import (
	"context"

	"github.com/driftnote/driftnote/internal/deeplink"
)

// Status is the resolver's externally visible state. Exactly one is active at
// a time, owned by the screen hosting the resolver.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusUpdated
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusUpdated:
		return "updated"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// FlowError describes a failed exchange. Retryable is false for expired or
// already-used credentials: that link can never work again, so the UI offers
// requesting a fresh one instead of a retry.
type FlowError struct {
	Message   string
	Retryable bool
}

const noCredentialsMsg = "no valid recovery credentials in link"

// Exchanger is the remote auth collaborator port. *auth.Client satisfies it.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) error
	SetSession(ctx context.Context, accessToken, refreshToken string) error
	VerifyRecovery(ctx context.Context, token string, hashed bool) error
}

// Outcome is the result of one exchange attempt. A nil Err means a session
// was established.
type Outcome struct {
	Err *FlowError
}

// Resolver drives a recovery link through credential exchange:
//
//	idle -> loading            Begin, with credentials present
//	loading -> ready           Finish, exchange succeeded
//	loading -> error           Finish, exchange failed
//	error -> loading           Retry, retryable errors only
//	ready -> updated           PasswordResult(nil)
//	ready -> error             PasswordResult(err)
//	error -> idle              Reset, for a fresh link
//	updated -> idle            Reset, for a fresh link
//
// updated and non-retryable error end the flow; only a Reset with a fresh
// link's credentials leaves them. The resolver is owned by a
// single update loop and is not safe for concurrent use; the exchange itself
// runs elsewhere and reports back through Finish. Begin and Retry refuse
// while loading, so at most one exchange is in flight.
type Resolver struct {
	exchanger Exchanger
	status    Status
	flowErr   *FlowError
	params    deeplink.Params
}

// New creates a Resolver in StatusIdle.
func New(exchanger Exchanger) *Resolver {
	return &Resolver{exchanger: exchanger, status: StatusIdle}
}

// Status returns the current state.
func (r *Resolver) Status() Status { return r.status }

// Err returns the current flow error; non-nil only in StatusError.
func (r *Resolver) Err() *FlowError { return r.flowErr }

// Begin consumes an extracted parameter set. When the resolver is idle and
// the set carries credentials, the set is retained for later retry and the
// resolver moves to loading; the caller must then run Exchange and feed the
// outcome to Finish. Returns whether an exchange should start. A set without
// credentials leaves the resolver idle.
func (r *Resolver) Begin(p deeplink.Params) bool {
	if r.status != StatusIdle || !p.HasCredentials() {
		return false
	}
	r.params = p
	r.status = StatusLoading
	r.flowErr = nil
	return true
}

// Exchange dispatches the retained credentials to exactly one exchange
// operation, in fixed priority order: PKCE code, then implicit token pair,
// then one-time recovery code with the hash form preferred. It does not
// mutate resolver state; feed the result to Finish from the owning loop.
func (r *Resolver) Exchange(ctx context.Context) Outcome {
	p := r.params
	var err error
	switch {
	case p.Code != "":
		err = r.exchanger.ExchangeCode(ctx, p.Code)
	case p.AccessToken != "" && p.RefreshToken != "":
		err = r.exchanger.SetSession(ctx, p.AccessToken, p.RefreshToken)
	case p.TokenHash != "":
		err = r.exchanger.VerifyRecovery(ctx, p.TokenHash, true)
	case p.Token != "":
		err = r.exchanger.VerifyRecovery(ctx, p.Token, false)
	default:
		// Begin gates on HasCredentials, so this is unreachable in practice.
		return Outcome{Err: &FlowError{Message: noCredentialsMsg}}
	}
	if err != nil {
		return Outcome{Err: &FlowError{
			Message:   err.Error(),
			Retryable: !IsExpiredOrUsed(err.Error()),
		}}
	}
	return Outcome{}
}

// Finish applies an exchange outcome: loading moves to ready on success and
// to error on failure. Outcomes arriving in any other state are dropped.
func (r *Resolver) Finish(out Outcome) {
	if r.status != StatusLoading {
		return
	}
	if out.Err != nil {
		r.status = StatusError
		r.flowErr = out.Err
		return
	}
	r.status = StatusReady
	r.flowErr = nil
}

// Reset returns a finished resolver to idle so a fresh link can start a new
// flow. Only the error and updated states reset; loading keeps its in-flight
// exchange and ready keeps its established session. Returns whether the
// resolver was reset.
func (r *Resolver) Reset() bool {
	if r.status != StatusError && r.status != StatusUpdated {
		return false
	}
	r.status = StatusIdle
	r.flowErr = nil
	r.params = deeplink.Params{}
	return true
}

// Retry moves a retryable error back to loading so the caller can re-run
// Exchange with the identical retained parameters. Returns whether the caller
// should do so.
func (r *Resolver) Retry() bool {
	if r.status != StatusError || r.flowErr == nil || !r.flowErr.Retryable {
		return false
	}
	r.status = StatusLoading
	r.flowErr = nil
	return true
}

// PasswordResult applies the outcome of the new-password submission: ready
// moves to updated on success, or to error carrying the failure message on
// failure. Submission failures are never classified as expired/used; the
// session is established, so the error stays retryable.
func (r *Resolver) PasswordResult(err error) {
	if r.status != StatusReady {
		return
	}
	if err != nil {
		r.status = StatusError
		r.flowErr = &FlowError{Message: err.Error(), Retryable: true}
		return
	}
	r.status = StatusUpdated
	r.flowErr = nil
}
