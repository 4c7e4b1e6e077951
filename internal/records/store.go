package records

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistent owner of every record. Each call is atomic on its own;
// sequences of calls are not.
type Store interface {
	QueryCommRegs(ctx context.Context, filter Filter) ([]CommReg, error)
	QueryServices(ctx context.Context, filter Filter) ([]Service, error)
	QueryServiceChanges(ctx context.Context, filter Filter) ([]ServiceChange, error)

	LoadCustomer(ctx context.Context, id int64) (*Customer, error)
	LoadCommReg(ctx context.Context, id int64) (*CommReg, error)
	LoadService(ctx context.Context, id int64) (*Service, error)
	LoadServiceChange(ctx context.Context, id int64) (*ServiceChange, error)
	LoadSalesRecord(ctx context.Context, id int64) (*SalesRecord, error)
	LoadPartner(ctx context.Context, id int64) (*Partner, error)

	// SaveCustomer persists the customer together with its billing lines.
	SaveCustomer(ctx context.Context, c *Customer) error
	// Save methods create the record when its ID is zero and return the stored ID.
	SaveCommReg(ctx context.Context, c *CommReg) (int64, error)
	SaveService(ctx context.Context, s *Service) (int64, error)
	SaveServiceChange(ctx context.Context, s *ServiceChange) (int64, error)

	UpdateFields(ctx context.Context, rt RecordType, id int64, values Values) error
	Delete(ctx context.Context, rt RecordType, id int64) error

	ListOptions(ctx context.Context, list, valueColumn, textColumn string) ([]Option, error)
	ListServiceTypes(ctx context.Context, category int64) ([]ServiceType, error)
}
