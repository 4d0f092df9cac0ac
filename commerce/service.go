// Package commerce implements the business operations the support handlers
// reach through their tools: customer, product and order lookups and the
// transactional order placement.
//
// Lookups treat absence as a normal outcome and return nil or an empty
// slice with a nil error. Errors are reserved for store failures and, for
// PlaceOrder, validation failures.
package commerce

import (
	"time"

	storex "github.com/tanpawarit/Chative-Support-Router/commerce/store"
	"github.com/tanpawarit/Chative-Support-Router/pkg/telemetry"
)

var tracer = telemetry.Tracer("github.com/tanpawarit/Chative-Support-Router/commerce")

type Service struct {
	store      *storex.Store
	now        func() time.Time
	newOrderID func() (string, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOrderIDGenerator replaces the random order id source.
func WithOrderIDGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.newOrderID = gen
		}
	}
}

func NewService(store *storex.Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		now:        time.Now,
		newOrderID: NewOrderID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}
