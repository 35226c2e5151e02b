// Package identity carries the caller of a scheduling operation as an
// explicit value. Services never read the caller from ambient state.
package identity

import (
	"context"
	"strings"
)

type Caller struct {
	Email string
	Name  string
	// Anonymous is set when the request carried no identity and Email was
	// filled from the configured demo identity.
	Anonymous bool
}

// Resolver turns raw request credentials into a Caller.
type Resolver struct {
	demoIdentity string
}

func NewResolver(demoIdentity string) *Resolver {
	return &Resolver{demoIdentity: strings.ToLower(strings.TrimSpace(demoIdentity))}
}

// Resolve normalizes email and substitutes the demo identity when it is empty.
func (r *Resolver) Resolve(email, name string) Caller {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Caller{Email: r.demoIdentity, Name: "Demo Patient", Anonymous: true}
	}
	return Caller{Email: email, Name: strings.TrimSpace(name)}
}

type ctxKey struct{}

// WithCaller is used by the HTTP layer only; services take Caller arguments.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}

// DisplayName returns Name or the local part of Email.
func (c Caller) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if at := strings.IndexByte(c.Email, '@'); at > 0 {
		return c.Email[:at]
	}
	return c.Email
}
