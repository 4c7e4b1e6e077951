package editing

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/servicechange/internal/records"
)

// User is the authenticated caller as resolved by the fronting platform.
type User struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}

type userKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the caller stored by WithUser.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

// Service implements the editing operations on top of a records.Store.
type Service struct {
	store    records.Store
	lookups  *LookupCache
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs a Service. A nil lookups reads lookup lists straight from store.
func NewService(store records.Store, lookups *LookupCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if lookups == nil {
		lookups = NewLookupCache(store, nil, 0, logger)
	}
	return &Service{
		store:    store,
		lookups:  lookups,
		validate: newValidator(),
		logger:   logger.With(slog.String("component", "editing")),
	}
}

func bind[P any](s *Service, fn func(context.Context, P) (any, error)) Operation {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		params, err := decodeParams[P](s.validate, raw)
		if err != nil {
			return nil, err
		}
		out, err := fn(ctx, params)
		return out, classify(err)
	}
}

type noParams struct{}

// Registry returns every read and write operation keyed by name.
func (s *Service) Registry() *Registry {
	r := NewRegistry()

	r.Register(MethodGet, "getCurrentUserDetails", bind(s, s.getCurrentUserDetails))
	r.Register(MethodGet, "getSelectOptions", bind(s, s.getSelectOptions))
	r.Register(MethodGet, "getServiceTypes", bind(s, s.getServiceTypes))
	r.Register(MethodGet, "getSalesRecord", bind(s, s.getSalesRecord))
	r.Register(MethodGet, "getCommencementRegister", bind(s, s.getCommencementRegister))
	r.Register(MethodGet, "getCommRegBySalesRecordId", bind(s, s.getCommRegBySalesRecordID))
	r.Register(MethodGet, "getCommRegsByCustomerId", bind(s, s.getCommRegsByCustomerID))
	r.Register(MethodGet, "getCustomerDetails", bind(s, s.getCustomerDetails))
	r.Register(MethodGet, "getServicesAndServiceChanges", bind(s, s.getServicesAndServiceChanges))
	r.Register(MethodGet, "getFranchiseeOfCustomer", bind(s, s.getFranchiseeOfCustomer))

	r.Register(MethodPost, "verifyParameters", bind(s, s.verifyParameters))
	r.Register(MethodPost, "saveService", bind(s, s.saveService))
	r.Register(MethodPost, "cancelPendingService", bind(s, s.cancelPendingService))
	r.Register(MethodPost, "cancelChangesOfService", bind(s, s.cancelChangesOfService))
	r.Register(MethodPost, "saveServiceChange", bind(s, s.saveServiceChange))
	r.Register(MethodPost, "createCommencementRegister", bind(s, s.createCommencementRegister))
	r.Register(MethodPost, "updateServiceRatesOfCustomer", bind(s, s.updateServiceRatesOfCustomer))
	r.Register(MethodPost, "updateEffectiveDate", bind(s, s.updateEffectiveDate))
	r.Register(MethodPost, "updateTrialEndDate", bind(s, s.updateTrialEndDate))

	return r
}
