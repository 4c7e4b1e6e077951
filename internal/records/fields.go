package records

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Field identifies a stored attribute of a record.
type Field string

// Values is a partial update keyed by field.
type Values map[Field]any

const (
	FieldID            Field = "id"
	FieldCustomer      Field = "customer_id"
	FieldPartner       Field = "partner_id"
	FieldStatus        Field = "status"
	FieldCommReg       Field = "comm_reg_id"
	FieldService       Field = "service_id"
	FieldServiceType   Field = "service_type_id"
	FieldSalesRecord   Field = "sales_record_id"
	FieldBillingStart  Field = "billing_start_date"
	FieldCompanyName   Field = "company_name"
	FieldEmail         Field = "email"
	FieldPricingNotes  Field = "pricing_notes"
	FieldMonthlyRate   Field = "monthly_service_rate"
	FieldMonthlyExtra  Field = "monthly_extra_service_rate"
	FieldMonthlyReduce Field = "monthly_reduced_service_rate"

	FieldCommencementDate Field = "commencement_date"
	FieldTrialExpiry      Field = "trial_expiry_date"
	FieldSignupDate       Field = "signup_date"
	FieldInOutbound       Field = "in_outbound"

	FieldName        Field = "name"
	FieldDescription Field = "description"
	FieldPrice       Field = "price"
	FieldActive      Field = "active"
	FieldFrequency   Field = "frequency"
	FieldCategory    Field = "category"

	FieldChangeType    Field = "change_type"
	FieldOldPrice      Field = "old_price"
	FieldNewPrice      Field = "new_price"
	FieldOldFrequency  Field = "old_frequency"
	FieldNewFrequency  Field = "new_frequency"
	FieldEffectiveDate Field = "effective_date"
	FieldCessationDate Field = "cessation_date"
	FieldCancelledDate Field = "cancellation_date"
	FieldTrialEndDate  Field = "trial_end_date"
	FieldInactive      Field = "inactive"
	FieldCreatedBy     Field = "created_by"

	FieldCompleted Field = "completed"
	FieldCampaign  Field = "campaign_id"
	FieldSalesRep  Field = "sales_rep_id"

	// FieldCustomerStatus reads the account status of the owning customer. Query only.
	FieldCustomerStatus Field = "customer.status"
)

var (
	// ErrUnknownField is returned for a field the record type does not carry.
	ErrUnknownField = errors.New("unknown field")
	// ErrFieldType is returned when a value cannot be converted to the field's type.
	ErrFieldType = errors.New("invalid field value")
	// ErrReadOnlyField is returned when writing an identifier or joined field.
	ErrReadOnlyField = errors.New("field is read only")
)

type accessor[T any] struct {
	get func(*T) any
	set func(*T, any) error
}

type fieldTable[T any] map[Field]accessor[T]

func (t fieldTable[T]) get(rec *T, f Field) (any, error) {
	a, ok := t[f]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownField, "%s", f)
	}
	return a.get(rec), nil
}

func (t fieldTable[T]) set(rec *T, f Field, v any) error {
	a, ok := t[f]
	if !ok {
		return errors.Wrapf(ErrUnknownField, "%s", f)
	}
	if a.set == nil {
		return errors.Wrapf(ErrReadOnlyField, "%s", f)
	}
	if err := a.set(rec, v); err != nil {
		return errors.Wrapf(err, "field %s", f)
	}
	return nil
}

func (t fieldTable[T]) apply(rec *T, values Values) error {
	for f, v := range values {
		if err := t.set(rec, f, v); err != nil {
			return err
		}
	}
	return nil
}

func (t fieldTable[T]) fields() []Field {
	out := make([]Field, 0, len(t))
	for f := range t {
		out = append(out, f)
	}
	return out
}

func readOnly[T any](get func(*T) any) accessor[T] {
	return accessor[T]{get: get}
}

var customerFields = fieldTable[Customer]{
	FieldID:          readOnly(func(c *Customer) any { return c.ID }),
	FieldCompanyName: {func(c *Customer) any { return c.CompanyName }, func(c *Customer, v any) (err error) { c.CompanyName, err = AsString(v); return }},
	FieldEmail:       {func(c *Customer) any { return c.Email }, func(c *Customer, v any) (err error) { c.Email, err = AsString(v); return }},
	FieldPartner:     {func(c *Customer) any { return c.PartnerID }, func(c *Customer, v any) (err error) { c.PartnerID, err = AsInt64(v); return }},
	FieldStatus: {func(c *Customer) any { return c.Status }, func(c *Customer, v any) error {
		n, err := AsInt64(v)
		c.Status = CustomerStatus(n)
		return err
	}},
	FieldMonthlyRate:   {func(c *Customer) any { return c.MonthlyServiceRate }, func(c *Customer, v any) (err error) { c.MonthlyServiceRate, err = AsDecimal(v); return }},
	FieldMonthlyExtra:  {func(c *Customer) any { return c.MonthlyExtraServiceRate }, func(c *Customer, v any) (err error) { c.MonthlyExtraServiceRate, err = AsDecimal(v); return }},
	FieldMonthlyReduce: {func(c *Customer) any { return c.MonthlyReducedServiceRate }, func(c *Customer, v any) (err error) { c.MonthlyReducedServiceRate, err = AsDecimal(v); return }},
	FieldPricingNotes:  {func(c *Customer) any { return c.PricingNotes }, func(c *Customer, v any) (err error) { c.PricingNotes, err = AsString(v); return }},
}

var commRegFields = fieldTable[CommReg]{
	FieldID:               readOnly(func(c *CommReg) any { return c.ID }),
	FieldCustomer:         {func(c *CommReg) any { return c.CustomerID }, func(c *CommReg, v any) (err error) { c.CustomerID, err = AsInt64(v); return }},
	FieldPartner:          {func(c *CommReg) any { return c.PartnerID }, func(c *CommReg, v any) (err error) { c.PartnerID, err = AsInt64(v); return }},
	FieldSalesRecord:      {func(c *CommReg) any { return c.SalesRecordID }, func(c *CommReg, v any) (err error) { c.SalesRecordID, err = AsInt64(v); return }},
	FieldCommencementDate: {func(c *CommReg) any { return c.CommencementDate }, func(c *CommReg, v any) (err error) { c.CommencementDate, err = AsDate(v); return }},
	FieldTrialExpiry:      {func(c *CommReg) any { return c.TrialExpiryDate }, func(c *CommReg, v any) (err error) { c.TrialExpiryDate, err = AsOptionalDate(v); return }},
	FieldBillingStart:     {func(c *CommReg) any { return c.BillingStartDate }, func(c *CommReg, v any) (err error) { c.BillingStartDate, err = AsOptionalDate(v); return }},
	FieldSignupDate:       {func(c *CommReg) any { return c.SignupDate }, func(c *CommReg, v any) (err error) { c.SignupDate, err = AsOptionalDate(v); return }},
	FieldInOutbound:       {func(c *CommReg) any { return c.InOutbound }, func(c *CommReg, v any) (err error) { c.InOutbound, err = AsString(v); return }},
	FieldStatus: {func(c *CommReg) any { return c.Status }, func(c *CommReg, v any) error {
		n, err := AsInt64(v)
		c.Status = CommRegStatus(n)
		return err
	}},
}

var serviceFields = fieldTable[Service]{
	FieldID:          readOnly(func(s *Service) any { return s.ID }),
	FieldCustomer:    {func(s *Service) any { return s.CustomerID }, func(s *Service, v any) (err error) { s.CustomerID, err = AsInt64(v); return }},
	FieldCommReg:     {func(s *Service) any { return s.CommRegID }, func(s *Service, v any) (err error) { s.CommRegID, err = AsInt64(v); return }},
	FieldServiceType: {func(s *Service) any { return s.ServiceTypeID }, func(s *Service, v any) (err error) { s.ServiceTypeID, err = AsInt64(v); return }},
	FieldName:        {func(s *Service) any { return s.Name }, func(s *Service, v any) (err error) { s.Name, err = AsString(v); return }},
	FieldDescription: {func(s *Service) any { return s.Description }, func(s *Service, v any) (err error) { s.Description, err = AsString(v); return }},
	FieldPrice:       {func(s *Service) any { return s.Price }, func(s *Service, v any) (err error) { s.Price, err = AsDecimal(v); return }},
	FieldActive:      {func(s *Service) any { return s.Active }, func(s *Service, v any) (err error) { s.Active, err = AsBool(v); return }},
	FieldFrequency:   {func(s *Service) any { return s.Frequency }, func(s *Service, v any) (err error) { s.Frequency, err = AsFrequency(v); return }},
	FieldCategory:    {func(s *Service) any { return s.Category }, func(s *Service, v any) (err error) { s.Category, err = AsInt64(v); return }},
}

var serviceChangeFields = fieldTable[ServiceChange]{
	FieldID:           readOnly(func(s *ServiceChange) any { return s.ID }),
	FieldService:      {func(s *ServiceChange) any { return s.ServiceID }, func(s *ServiceChange, v any) (err error) { s.ServiceID, err = AsInt64(v); return }},
	FieldCommReg:      {func(s *ServiceChange) any { return s.CommRegID }, func(s *ServiceChange, v any) (err error) { s.CommRegID, err = AsInt64(v); return }},
	FieldCustomer:     {func(s *ServiceChange) any { return s.CustomerID }, func(s *ServiceChange, v any) (err error) { s.CustomerID, err = AsInt64(v); return }},
	FieldServiceType:  {func(s *ServiceChange) any { return s.ServiceTypeID }, func(s *ServiceChange, v any) (err error) { s.ServiceTypeID, err = AsInt64(v); return }},
	FieldChangeType:   {func(s *ServiceChange) any { return s.ChangeType }, func(s *ServiceChange, v any) (err error) { s.ChangeType, err = AsString(v); return }},
	FieldOldPrice:     {func(s *ServiceChange) any { return s.OldPrice }, func(s *ServiceChange, v any) (err error) { s.OldPrice, err = AsDecimal(v); return }},
	FieldNewPrice:     {func(s *ServiceChange) any { return s.NewPrice }, func(s *ServiceChange, v any) (err error) { s.NewPrice, err = AsNullDecimal(v); return }},
	FieldOldFrequency: {func(s *ServiceChange) any { return s.OldFrequency }, func(s *ServiceChange, v any) (err error) { s.OldFrequency, err = AsFrequency(v); return }},
	FieldNewFrequency: {func(s *ServiceChange) any { return s.NewFrequency }, func(s *ServiceChange, v any) (err error) { s.NewFrequency, err = AsFrequency(v); return }},
	FieldEffectiveDate: {func(s *ServiceChange) any { return s.EffectiveDate }, func(s *ServiceChange, v any) (err error) {
		s.EffectiveDate, err = AsDate(v)
		return
	}},
	FieldCessationDate: {func(s *ServiceChange) any { return s.CessationDate }, func(s *ServiceChange, v any) (err error) {
		s.CessationDate, err = AsOptionalDate(v)
		return
	}},
	FieldCancelledDate: {func(s *ServiceChange) any { return s.CancellationDate }, func(s *ServiceChange, v any) (err error) {
		s.CancellationDate, err = AsOptionalDate(v)
		return
	}},
	FieldTrialEndDate: {func(s *ServiceChange) any { return s.TrialEndDate }, func(s *ServiceChange, v any) (err error) {
		s.TrialEndDate, err = AsOptionalDate(v)
		return
	}},
	FieldBillingStart: {func(s *ServiceChange) any { return s.BillingStartDate }, func(s *ServiceChange, v any) (err error) {
		s.BillingStartDate, err = AsOptionalDate(v)
		return
	}},
	FieldInactive:  {func(s *ServiceChange) any { return s.Inactive }, func(s *ServiceChange, v any) (err error) { s.Inactive, err = AsBool(v); return }},
	FieldCreatedBy: {func(s *ServiceChange) any { return s.CreatedBy }, func(s *ServiceChange, v any) (err error) { s.CreatedBy, err = AsInt64(v); return }},
	FieldStatus: {func(s *ServiceChange) any { return s.Status }, func(s *ServiceChange, v any) error {
		n, err := AsInt64(v)
		s.Status = ServiceChangeStatus(n)
		return err
	}},
}

var salesRecordFields = fieldTable[SalesRecord]{
	FieldID:        readOnly(func(s *SalesRecord) any { return s.ID }),
	FieldCustomer:  {func(s *SalesRecord) any { return s.CustomerID }, func(s *SalesRecord, v any) (err error) { s.CustomerID, err = AsInt64(v); return }},
	FieldCompleted: {func(s *SalesRecord) any { return s.Completed }, func(s *SalesRecord, v any) (err error) { s.Completed, err = AsBool(v); return }},
	FieldCampaign:  {func(s *SalesRecord) any { return s.CampaignID }, func(s *SalesRecord, v any) (err error) { s.CampaignID, err = AsInt64(v); return }},
	FieldSalesRep:  {func(s *SalesRecord) any { return s.SalesRepID }, func(s *SalesRecord, v any) (err error) { s.SalesRepID, err = AsInt64(v); return }},
}

var partnerFields = fieldTable[Partner]{
	FieldID:    readOnly(func(p *Partner) any { return p.ID }),
	FieldName:  {func(p *Partner) any { return p.Name }, func(p *Partner, v any) (err error) { p.Name, err = AsString(v); return }},
	FieldEmail: {func(p *Partner) any { return p.Email }, func(p *Partner, v any) (err error) { p.Email, err = AsString(v); return }},
}

func (c *Customer) Get(f Field) (any, error) { return customerFields.get(c, f) }
func (c *Customer) Set(f Field, v any) error { return customerFields.set(c, f, v) }
func (c *Customer) Apply(values Values) error { return customerFields.apply(c, values) }
func (c *CommReg) Get(f Field) (any, error) { return commRegFields.get(c, f) }
func (c *CommReg) Set(f Field, v any) error { return commRegFields.set(c, f, v) }
func (c *CommReg) Apply(values Values) error { return commRegFields.apply(c, values) }
func (s *Service) Get(f Field) (any, error) { return serviceFields.get(s, f) }
func (s *Service) Set(f Field, v any) error { return serviceFields.set(s, f, v) }
func (s *Service) Apply(values Values) error { return serviceFields.apply(s, values) }
func (s *ServiceChange) Get(f Field) (any, error) { return serviceChangeFields.get(s, f) }
func (s *ServiceChange) Set(f Field, v any) error { return serviceChangeFields.set(s, f, v) }
func (s *ServiceChange) Apply(values Values) error {
	return serviceChangeFields.apply(s, values)
}
func (s *SalesRecord) Get(f Field) (any, error) { return salesRecordFields.get(s, f) }
func (p *Partner) Get(f Field) (any, error) { return partnerFields.get(p, f) }

// FieldsOf lists the writable and readable fields of a record type.
func FieldsOf(rt RecordType) []Field {
	switch rt {
	case TypeCustomer:
		return customerFields.fields()
	case TypeCommReg:
		return commRegFields.fields()
	case TypeService:
		return serviceFields.fields()
	case TypeServiceChange:
		return serviceChangeFields.fields()
	case TypeSalesRecord:
		return salesRecordFields.fields()
	case TypePartner:
		return partnerFields.fields()
	}
	return nil
}

// Normalize converts v to the canonical Go type of field f on record type rt.
func Normalize(rt RecordType, f Field, v any) (any, error) {
	switch rt {
	case TypeCustomer:
		var c Customer
		if err := c.Set(f, v); err != nil {
			return nil, err
		}
		return c.Get(f)
	case TypeCommReg:
		var c CommReg
		if err := c.Set(f, v); err != nil {
			return nil, err
		}
		return c.Get(f)
	case TypeService:
		var s Service
		if err := s.Set(f, v); err != nil {
			return nil, err
		}
		return s.Get(f)
	case TypeServiceChange:
		var s ServiceChange
		if err := s.Set(f, v); err != nil {
			return nil, err
		}
		return s.Get(f)
	case TypeSalesRecord:
		var s SalesRecord
		if err := salesRecordFields.set(&s, f, v); err != nil {
			return nil, err
		}
		return s.Get(f)
	case TypePartner:
		var p Partner
		if err := partnerFields.set(&p, f, v); err != nil {
			return nil, err
		}
		return p.Get(f)
	}
	return nil, errors.Wrapf(ErrUnknownField, "%s.%s", rt, f)
}

// AsInt64 converts identifiers and list values.
func AsInt64(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case CommRegStatus:
		return x.Code(), nil
	case ServiceChangeStatus:
		return x.Code(), nil
	case CustomerStatus:
		return x.Code(), nil
	case string:
		if strings.TrimSpace(x) == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrFieldType, "%q is not a number", x)
		}
		return n, nil
	}
	return 0, errors.Wrapf(ErrFieldType, "%T is not a number", v)
}

func AsString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	}
	return "", errors.Wrapf(ErrFieldType, "%T is not a string", v)
}

func AsBool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(x)) {
		case "T", "TRUE", "1":
			return true, nil
		case "F", "FALSE", "0", "":
			return false, nil
		}
	}
	return false, errors.Wrapf(ErrFieldType, "%v is not a boolean", v)
}

func AsDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case decimal.NullDecimal:
		if !x.Valid {
			return decimal.Zero, nil
		}
		return x.Decimal, nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		if strings.TrimSpace(x) == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero, errors.Wrapf(ErrFieldType, "%q is not a price", x)
		}
		return d, nil
	}
	return decimal.Zero, errors.Wrapf(ErrFieldType, "%T is not a price", v)
}

func AsNullDecimal(v any) (decimal.NullDecimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case decimal.NullDecimal:
		return x, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return decimal.NullDecimal{}, nil
		}
	}
	d, err := AsDecimal(v)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func AsFrequency(v any) (Frequency, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case Frequency:
		return x, nil
	case string:
		return ParseFrequency(x)
	case []Day:
		return NewFrequency(x...), nil
	case []any:
		var f Frequency
		for _, item := range x {
			n, err := AsInt64(item)
			if err != nil || !Day(n).Valid() {
				return 0, errors.Wrapf(ErrInvalidFrequency, "day code %v", item)
			}
			f = f.With(Day(n))
		}
		return f, nil
	}
	return 0, errors.Wrapf(ErrFieldType, "%T is not a frequency", v)
}

var dateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05.000", time.RFC3339Nano}

func AsDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return Date(x), nil
	case *time.Time:
		if x == nil {
			return time.Time{}, nil
		}
		return Date(*x), nil
	case nil:
		return time.Time{}, nil
	case string:
		if strings.TrimSpace(x) == "" {
			return time.Time{}, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(x)); err == nil {
				return Date(t), nil
			}
		}
		return time.Time{}, errors.Wrapf(ErrFieldType, "%q is not a date", x)
	}
	return time.Time{}, errors.Wrapf(ErrFieldType, "%T is not a date", v)
}

func AsOptionalDate(v any) (*time.Time, error) {
	t, err := AsDate(v)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}
