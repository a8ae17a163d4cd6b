// Package verify decides whether an address can receive mail before any
// provider is asked to deliver to it. Checks run offline against syntax
// and DNS; no SMTP connection is opened.
package verify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-mailroom/core"
)

const (
	maxAddressLength = 254
	maxLocalLength   = 64
	defaultTimeout   = 10 * time.Second
)

// Resolver is the subset of net.Resolver the verifier needs. Tests plug
// in a fake zone set instead of the real DNS.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

type Config struct {
	// CheckMX enables the DNS step. Syntax-only verification is useful
	// in environments without outbound DNS.
	CheckMX bool
	Timeout time.Duration
}

type Option func(*Verifier)

func WithResolver(resolver Resolver) Option {
	return func(v *Verifier) {
		if resolver != nil {
			v.resolver = resolver
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// Verifier implements core.AddressVerifier. A failed check yields an
// invalid verdict with a reason; trouble running the check itself yields
// an error so the caller can retry later.
type Verifier struct {
	cfg      Config
	resolver Resolver
	logger   core.Logger
}

func New(cfg Config, options ...Option) *Verifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	verifier := &Verifier{
		cfg:      cfg,
		resolver: net.DefaultResolver,
	}
	for _, option := range options {
		if option != nil {
			option(verifier)
		}
	}
	return verifier
}

func (v *Verifier) Verify(ctx context.Context, email string) (core.Verdict, error) {
	domain, verdict := checkSyntax(email)
	if !verdict.Valid {
		return verdict, nil
	}
	if !v.cfg.CheckMX {
		return core.Verdict{Valid: true}, nil
	}
	return v.checkMX(ctx, domain)
}

// checkSyntax validates the address shape and returns the domain part.
func checkSyntax(email string) (string, core.Verdict) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", core.Verdict{Reason: "address is empty"}
	}
	if len(email) > maxAddressLength {
		return "", core.Verdict{Reason: "address exceeds 254 characters"}
	}

	parsed, err := mail.ParseAddress(email)
	if err != nil {
		return "", core.Verdict{Reason: fmt.Sprintf("address syntax: %v", err)}
	}
	if parsed.Address != email {
		// Display names and comments are not addresses.
		return "", core.Verdict{Reason: "address must be a bare addr-spec"}
	}

	at := strings.LastIndex(parsed.Address, "@")
	local, domain := parsed.Address[:at], parsed.Address[at+1:]
	if len(local) > maxLocalLength {
		return "", core.Verdict{Reason: "local part exceeds 64 characters"}
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return "", core.Verdict{Reason: "local part has a misplaced dot"}
	}
	if !strings.Contains(domain, ".") {
		return "", core.Verdict{Reason: "domain is not fully qualified"}
	}
	return domain, core.Verdict{Valid: true}
}

// checkMX requires the domain to publish a usable mail exchanger, with
// the implicit MX fallback to the domain's own address records. A null
// MX record (RFC 7505) is an explicit refusal.
func (v *Verifier) checkMX(ctx context.Context, domain string) (core.Verdict, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	mxs, err := v.resolver.LookupMX(lookupCtx, domain)
	if err != nil && !isNotFound(err) {
		return core.Verdict{}, fmt.Errorf("%w: mx lookup for %s: %v", core.ErrVerificationFailed, domain, err)
	}

	if len(mxs) == 1 && strings.TrimRight(mxs[0].Host, ".") == "" {
		return core.Verdict{Reason: "domain declines mail (null MX)"}, nil
	}
	if len(mxs) > 0 {
		return core.Verdict{Valid: true}, nil
	}

	// Implicit MX: a domain without MX records still receives mail on
	// its A/AAAA host.
	addrs, err := v.resolver.LookupIPAddr(lookupCtx, domain)
	if err != nil {
		if isNotFound(err) {
			return core.Verdict{Reason: "domain has no mail exchanger"}, nil
		}
		return core.Verdict{}, fmt.Errorf("%w: host lookup for %s: %v", core.ErrVerificationFailed, domain, err)
	}
	if len(addrs) == 0 {
		return core.Verdict{Reason: "domain has no mail exchanger"}, nil
	}
	if v.logger != nil {
		v.logger.Debug("no MX records, accepted via implicit MX", "domain", domain)
	}
	return core.Verdict{Valid: true}, nil
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return false
}

var _ core.AddressVerifier = (*Verifier)(nil)
