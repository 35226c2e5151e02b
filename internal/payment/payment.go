// Package payment maps a payment-method tag to the handler that validates
// charges for it. The table is built once at startup.
package payment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
)

type Method string

const (
	MethodCash      Method = "CASH"
	MethodCard      Method = "CARD"
	MethodInsurance Method = "INSURANCE"
)

// Handler is the capability a payment method offers to the scheduler.
type Handler interface {
	Method() Method
	// Validate checks that amount can be collected with this method.
	Validate(amount float64) error
}

type cashHandler struct{ limit float64 }

func (cashHandler) Method() Method { return MethodCash }

func (h cashHandler) Validate(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: cash payment must be positive", apperr.ErrInvalidInput)
	}
	if amount > h.limit {
		return fmt.Errorf("%w: cash payments are limited to %.2f", apperr.ErrInvalidInput, h.limit)
	}
	return nil
}

type cardHandler struct{}

func (cardHandler) Method() Method { return MethodCard }

func (cardHandler) Validate(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: card payment must be positive", apperr.ErrInvalidInput)
	}
	return nil
}

// insuranceHandler allows a zero co-pay.
type insuranceHandler struct{}

func (insuranceHandler) Method() Method { return MethodInsurance }

func (insuranceHandler) Validate(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("%w: insurance co-pay cannot be negative", apperr.ErrInvalidInput)
	}
	return nil
}

var builtin = map[Method]Handler{
	MethodCash:      cashHandler{limit: 10000},
	MethodCard:      cardHandler{},
	MethodInsurance: insuranceHandler{},
}

type Registry struct {
	handlers map[Method]Handler
}

// NewRegistry enables the named methods. Unknown names fail startup.
func NewRegistry(enabled []string) (*Registry, error) {
	r := &Registry{handlers: make(map[Method]Handler, len(enabled))}
	for _, name := range enabled {
		m := Method(strings.ToUpper(strings.TrimSpace(name)))
		h, ok := builtin[m]
		if !ok {
			return nil, fmt.Errorf("unknown payment method %q", name)
		}
		r.handlers[m] = h
	}
	return r, nil
}

// Resolve returns the handler for tag.
func (r *Registry) Resolve(tag string) (Handler, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(tag)))
	if h, ok := r.handlers[m]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: unsupported payment method %q", apperr.ErrInvalidInput, tag)
}

func (r *Registry) Methods() []Method {
	out := make([]Method, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
