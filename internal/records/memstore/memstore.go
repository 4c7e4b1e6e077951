// Package memstore keeps records in process memory. It backs tests and local runs.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/odyssey-erp/servicechange/internal/records"
)

type failureKey struct {
	op string
	rt records.RecordType
	id int64
}

// Store is an in-memory records.Store.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	customer map[int64]*records.Customer
	commRegs map[int64]*records.CommReg
	services map[int64]*records.Service
	changes  map[int64]*records.ServiceChange
	sales    map[int64]*records.SalesRecord
	partners map[int64]*records.Partner
	options  map[string][]records.Option
	types    []records.ServiceType
	failures map[failureKey]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		nextID:   1000,
		customer: map[int64]*records.Customer{},
		commRegs: map[int64]*records.CommReg{},
		services: map[int64]*records.Service{},
		changes:  map[int64]*records.ServiceChange{},
		sales:    map[int64]*records.SalesRecord{},
		partners: map[int64]*records.Partner{},
		options:  map[string][]records.Option{},
		failures: map[failureKey]error{},
	}
}

// FailSave makes every save of the given record fail with err.
func (s *Store) FailSave(rt records.RecordType, id int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[failureKey{op: "save", rt: rt, id: id}] = err
}

// FailUpdate makes UpdateFields on the given record fail with err.
func (s *Store) FailUpdate(rt records.RecordType, id int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[failureKey{op: "update", rt: rt, id: id}] = err
}

func (s *Store) failure(op string, rt records.RecordType, id int64) error {
	return s.failures[failureKey{op: op, rt: rt, id: id}]
}

func (s *Store) assignID(id *int64) {
	if *id == 0 {
		s.nextID++
		*id = s.nextID
	}
	if *id > s.nextID {
		s.nextID = *id
	}
}

// PutCustomer seeds a customer.
func (s *Store) PutCustomer(c records.Customer) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignID(&c.ID)
	s.customer[c.ID] = c.Clone()
	return c.ID
}

// PutCommReg seeds a commencement register.
func (s *Store) PutCommReg(c records.CommReg) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignID(&c.ID)
	s.commRegs[c.ID] = &c
	return c.ID
}

// PutService seeds a service.
func (s *Store) PutService(v records.Service) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignID(&v.ID)
	s.services[v.ID] = &v
	return v.ID
}

// PutServiceChange seeds a service change.
func (s *Store) PutServiceChange(v records.ServiceChange) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignID(&v.ID)
	s.changes[v.ID] = &v
	return v.ID
}

// PutSalesRecord seeds a sales record.
func (s *Store) PutSalesRecord(v records.SalesRecord) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignID(&v.ID)
	s.sales[v.ID] = &v
	return v.ID
}

// PutPartner seeds a partner.
func (s *Store) PutPartner(v records.Partner) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignID(&v.ID)
	s.partners[v.ID] = &v
	return v.ID
}

// PutOptions seeds a lookup list.
func (s *Store) PutOptions(list string, options []records.Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options[list] = append([]records.Option(nil), options...)
}

// PutServiceType seeds a service type.
func (s *Store) PutServiceType(t records.ServiceType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, t)
}

func (s *Store) QueryCommRegs(_ context.Context, filter records.Filter) ([]records.CommReg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query(s.commRegs, filter, func(c *records.CommReg) records.Getter {
		return func(f records.Field) (any, error) {
			if f == records.FieldCustomerStatus {
				if cust, ok := s.customer[c.CustomerID]; ok {
					return cust.Status, nil
				}
				return nil, nil
			}
			return c.Get(f)
		}
	})
}

func (s *Store) QueryServices(_ context.Context, filter records.Filter) ([]records.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query(s.services, filter, func(v *records.Service) records.Getter { return v.Get })
}

func (s *Store) QueryServiceChanges(_ context.Context, filter records.Filter) ([]records.ServiceChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query(s.changes, filter, func(v *records.ServiceChange) records.Getter { return v.Get })
}

func query[T any](rows map[int64]*T, filter records.Filter, getter func(*T) records.Getter) ([]T, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	ids := lo.Keys(rows)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, 0)
	for _, id := range ids {
		row := rows[id]
		ok, err := filter.Match(getter(row))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *row)
		}
	}
	return out, nil
}

func load[T any](rows map[int64]*T, rt records.RecordType, id int64) (*T, error) {
	row, ok := rows[id]
	if !ok {
		return nil, errors.Wrapf(records.ErrNotFound, "%s %d", rt, id)
	}
	cp := *row
	return &cp, nil
}

func (s *Store) LoadCustomer(_ context.Context, id int64) (*records.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customer[id]
	if !ok {
		return nil, errors.Wrapf(records.ErrNotFound, "%s %d", records.TypeCustomer, id)
	}
	return c.Clone(), nil
}

func (s *Store) LoadCommReg(_ context.Context, id int64) (*records.CommReg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return load(s.commRegs, records.TypeCommReg, id)
}

func (s *Store) LoadService(_ context.Context, id int64) (*records.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return load(s.services, records.TypeService, id)
}

func (s *Store) LoadServiceChange(_ context.Context, id int64) (*records.ServiceChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return load(s.changes, records.TypeServiceChange, id)
}

func (s *Store) LoadSalesRecord(_ context.Context, id int64) (*records.SalesRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return load(s.sales, records.TypeSalesRecord, id)
}

func (s *Store) LoadPartner(_ context.Context, id int64) (*records.Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return load(s.partners, records.TypePartner, id)
}

func (s *Store) SaveCustomer(_ context.Context, c *records.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("save", records.TypeCustomer, c.ID); err != nil {
		return err
	}
	if _, ok := s.customer[c.ID]; !ok {
		return errors.Wrapf(records.ErrNotFound, "%s %d", records.TypeCustomer, c.ID)
	}
	s.customer[c.ID] = c.Clone()
	return nil
}

func save[T any](s *Store, rows map[int64]*T, rt records.RecordType, id *int64, row *T) (int64, error) {
	if err := s.failure("save", rt, *id); err != nil {
		return 0, err
	}
	if *id != 0 {
		if _, ok := rows[*id]; !ok {
			return 0, errors.Wrapf(records.ErrNotFound, "%s %d", rt, *id)
		}
	}
	s.assignID(id)
	cp := *row
	rows[*id] = &cp
	return *id, nil
}

func (s *Store) SaveCommReg(_ context.Context, c *records.CommReg) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(s, s.commRegs, records.TypeCommReg, &c.ID, c)
}

func (s *Store) SaveService(_ context.Context, v *records.Service) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(s, s.services, records.TypeService, &v.ID, v)
}

func (s *Store) SaveServiceChange(_ context.Context, v *records.ServiceChange) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return save(s, s.changes, records.TypeServiceChange, &v.ID, v)
}

func (s *Store) UpdateFields(_ context.Context, rt records.RecordType, id int64, values records.Values) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("update", rt, id); err != nil {
		return err
	}
	switch rt {
	case records.TypeCustomer:
		return update(s.customer, rt, id, values, (*records.Customer).Apply)
	case records.TypeCommReg:
		return update(s.commRegs, rt, id, values, (*records.CommReg).Apply)
	case records.TypeService:
		return update(s.services, rt, id, values, (*records.Service).Apply)
	case records.TypeServiceChange:
		return update(s.changes, rt, id, values, (*records.ServiceChange).Apply)
	}
	return errors.Newf("record type %s is not updatable", rt)
}

func update[T any](rows map[int64]*T, rt records.RecordType, id int64, values records.Values, apply func(*T, records.Values) error) error {
	row, ok := rows[id]
	if !ok {
		return errors.Wrapf(records.ErrNotFound, "%s %d", rt, id)
	}
	cp := *row
	if err := apply(&cp, values); err != nil {
		return err
	}
	*row = cp
	return nil
}

func (s *Store) Delete(_ context.Context, rt records.RecordType, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found bool
	switch rt {
	case records.TypeCommReg:
		_, found = s.commRegs[id]
		delete(s.commRegs, id)
	case records.TypeService:
		_, found = s.services[id]
		delete(s.services, id)
	case records.TypeServiceChange:
		_, found = s.changes[id]
		delete(s.changes, id)
	default:
		return errors.Newf("record type %s cannot be deleted", rt)
	}
	if !found {
		return errors.Wrapf(records.ErrNotFound, "%s %d", rt, id)
	}
	return nil
}

func (s *Store) ListOptions(_ context.Context, list, _, _ string) ([]records.Option, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	options, ok := s.options[list]
	if !ok {
		return nil, errors.Wrapf(records.ErrNotFound, "list %s", list)
	}
	return append([]records.Option(nil), options...), nil
}

func (s *Store) ListServiceTypes(_ context.Context, category int64) ([]records.ServiceType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.types, func(t records.ServiceType, _ int) bool {
		return t.Category == category
	}), nil
}

var _ records.Store = (*Store)(nil)
