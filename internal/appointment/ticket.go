package appointment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	DefaultTicketPrefix      = "ELEVAT-REHAB"
	DefaultTicketMaxAttempts = 10
)

var ErrIssuanceExhausted = errors.New("could not issue a unique ticket number")

// TicketLookup is the part of the store the issuer needs.
type TicketLookup interface {
	TicketExists(ctx context.Context, ticket string) (bool, error)
}

// TicketIssuer produces PREFIX-YYYYMMDD-NNNN identifiers unique across all dates.
type TicketIssuer struct {
	lookup      TicketLookup
	prefix      string
	maxAttempts int
	loc         *time.Location
	suffix      func() int
}

type TicketOption func(*TicketIssuer)

// WithSuffixSource replaces the random NNNN source. fn must return values in [0, 9999].
func WithSuffixSource(fn func() int) TicketOption {
	return func(t *TicketIssuer) { t.suffix = fn }
}

func NewTicketIssuer(lookup TicketLookup, prefix string, maxAttempts int, loc *time.Location, opts ...TicketOption) *TicketIssuer {
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultTicketPrefix
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultTicketMaxAttempts
	}
	if loc == nil {
		loc = time.UTC
	}

	t := &TicketIssuer{
		lookup:      lookup,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		loc:         loc,
		suffix:      func() int { return rand.IntN(10000) },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TicketIssuer) MaxAttempts() int {
	return t.maxAttempts
}

func (t *TicketIssuer) format(date time.Time, n int) string {
	return fmt.Sprintf("%s-%s-%04d", t.prefix, date.In(t.loc).Format("20060102"), n)
}

// Issue returns a candidate that was unused at the time of the check. The caller
// still relies on the store's unique constraint to catch a concurrent issue.
func (t *TicketIssuer) Issue(ctx context.Context, date time.Time) (string, error) {
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		candidate := t.format(date, t.suffix())

		exists, err := t.lookup.TicketExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check ticket %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrIssuanceExhausted, t.maxAttempts)
}
