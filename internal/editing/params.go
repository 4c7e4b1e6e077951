package editing

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/odyssey-erp/servicechange/internal/records"
)

// ID accepts record identifiers sent either as JSON numbers or as numeric strings.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*id = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return errors.Newf("%q is not a record ID", raw)
	}
	*id = ID(n)
	return nil
}

// Int64 returns the identifier as stored.
func (id ID) Int64() int64 { return int64(id) }

// Fields is a free-form record payload keyed by field name.
type Fields map[string]any

// Values converts the payload into record values. Identifier keys are dropped.
func (f Fields) Values() records.Values {
	out := make(records.Values, len(f))
	for k, v := range f {
		field := records.Field(k)
		if field == records.FieldID || k == "internalid" {
			continue
		}
		out[field] = v
	}
	return out
}

type customerParams struct {
	CustomerID ID `json:"customerId" validate:"required"`
}

type customerFieldsParams struct {
	CustomerID ID       `json:"customerId" validate:"required"`
	FieldIDs   []string `json:"fieldIds"`
}

type salesRecordParams struct {
	SalesRecordID ID `json:"salesRecordId" validate:"required"`
}

type commRegParams struct {
	CommRegID ID `json:"commRegId" validate:"required"`
}

type selectOptionsParams struct {
	Type            string `json:"type" validate:"required,identifier"`
	ValueColumnName string `json:"valueColumnName" validate:"required,identifier"`
	TextColumnName  string `json:"textColumnName" validate:"required,identifier"`
}

type servicesAndChangesParams struct {
	CustomerID ID `json:"customerId" validate:"required"`
	CommRegID  ID `json:"commRegId"`
}

type verifyParams struct {
	CustomerID    ID `json:"customerId" validate:"required"`
	SalesRecordID ID `json:"salesRecordId"`
	CommRegID     ID `json:"commRegId"`
}

type saveServiceParams struct {
	ServiceID   ID     `json:"serviceId"`
	ServiceData Fields `json:"serviceData" validate:"required"`
}

type serviceScopeParams struct {
	ServiceID ID `json:"serviceId" validate:"required"`
	CommRegID ID `json:"commRegId"`
}

type cancelChangesParams struct {
	ServiceID ID `json:"serviceId" validate:"required"`
	CommRegID ID `json:"commRegId" validate:"required"`
}

type saveServiceChangeParams struct {
	ServiceChangeID   ID     `json:"serviceChangeId"`
	ServiceChangeData Fields `json:"serviceChangeData" validate:"required"`
}

type createCommRegParams struct {
	CustomerID    ID     `json:"customerId" validate:"required"`
	SalesRecordID ID     `json:"salesRecordId"`
	CommRegData   Fields `json:"commRegData"`
}

type serviceRatesParams struct {
	CustomerID ID `json:"customerId" validate:"required"`
	CommRegID  ID `json:"commRegId" validate:"required"`
}

type effectiveDateParams struct {
	CommRegID     ID     `json:"commRegId"`
	EffectiveDate string `json:"effectiveDate"`
}

type trialEndDateParams struct {
	CommRegID        ID     `json:"commRegId"`
	TrialEndDate     string `json:"trialEndDate"`
	BillingStartDate string `json:"billingStartDate"`
}
