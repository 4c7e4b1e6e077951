package records

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordType names a kind of record held by the store.
type RecordType string

const (
	TypeCustomer      RecordType = "customer"
	TypeCommReg       RecordType = "commencement_register"
	TypeService       RecordType = "service"
	TypeServiceChange RecordType = "service_change"
	TypeSalesRecord   RecordType = "sales_record"
	TypePartner       RecordType = "partner"
)

// BillingLine is one customer item pricing entry.
type BillingLine struct {
	ItemID     int64           `json:"item_id"`
	PriceLevel int64           `json:"price_level"`
	Rate       decimal.Decimal `json:"rate"`
}

// Customer is the billable account.
type Customer struct {
	ID                        int64           `json:"id"`
	CompanyName               string          `json:"company_name"`
	Email                     string          `json:"email"`
	PartnerID                 int64           `json:"partner_id"`
	Status                    CustomerStatus  `json:"status"`
	MonthlyServiceRate        decimal.Decimal `json:"monthly_service_rate"`
	MonthlyExtraServiceRate   decimal.Decimal `json:"monthly_extra_service_rate"`
	MonthlyReducedServiceRate decimal.Decimal `json:"monthly_reduced_service_rate"`
	PricingNotes              string          `json:"pricing_notes"`
	BillingLines              []BillingLine   `json:"billing_lines"`
}

// LineCount returns the number of billing lines.
func (c *Customer) LineCount() int {
	return len(c.BillingLines)
}

// AddLine appends a billing line.
func (c *Customer) AddLine(line BillingLine) {
	c.BillingLines = append(c.BillingLines, line)
}

// RemoveLine removes the line at index i. Later lines shift down by one.
func (c *Customer) RemoveLine(i int) {
	if i < 0 || i >= len(c.BillingLines) {
		return
	}
	c.BillingLines = append(c.BillingLines[:i], c.BillingLines[i+1:]...)
}

// Clone returns a deep copy of the customer.
func (c *Customer) Clone() *Customer {
	cp := *c
	cp.BillingLines = append([]BillingLine(nil), c.BillingLines...)
	return &cp
}

// CommReg is a commencement register: one subscription lifecycle episode of a customer.
type CommReg struct {
	ID               int64         `json:"id"`
	CustomerID       int64         `json:"customer_id"`
	PartnerID        int64         `json:"partner_id"`
	SalesRecordID    int64         `json:"sales_record_id"`
	CommencementDate time.Time     `json:"commencement_date"`
	TrialExpiryDate  *time.Time    `json:"trial_expiry_date,omitempty"`
	BillingStartDate *time.Time    `json:"billing_start_date,omitempty"`
	SignupDate       *time.Time    `json:"signup_date,omitempty"`
	InOutbound       string        `json:"in_outbound"`
	Status           CommRegStatus `json:"status"`
}

// IsFreeTrial reports whether the register carries a trial expiry.
func (c *CommReg) IsFreeTrial() bool {
	return c.TrialExpiryDate != nil
}

// Service is a recurring billable item of a customer.
type Service struct {
	ID            int64           `json:"id"`
	CustomerID    int64           `json:"customer_id"`
	CommRegID     int64           `json:"comm_reg_id"`
	ServiceTypeID int64           `json:"service_type_id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Active        bool            `json:"active"`
	Frequency     Frequency       `json:"frequency"`
	Category      int64           `json:"category"`
}

// ServiceChange is a pending or applied mutation of a service.
type ServiceChange struct {
	ID               int64               `json:"id"`
	ServiceID        int64               `json:"service_id"`
	CommRegID        int64               `json:"comm_reg_id"`
	CustomerID       int64               `json:"customer_id"`
	ServiceTypeID    int64               `json:"service_type_id"`
	Status           ServiceChangeStatus `json:"status"`
	ChangeType       string              `json:"change_type"`
	OldPrice         decimal.Decimal     `json:"old_price"`
	NewPrice         decimal.NullDecimal `json:"new_price"`
	OldFrequency     Frequency           `json:"old_frequency"`
	NewFrequency     Frequency           `json:"new_frequency"`
	EffectiveDate    time.Time           `json:"effective_date"`
	CessationDate    *time.Time          `json:"cessation_date,omitempty"`
	CancellationDate *time.Time          `json:"cancellation_date,omitempty"`
	TrialEndDate     *time.Time          `json:"trial_end_date,omitempty"`
	BillingStartDate *time.Time          `json:"billing_start_date,omitempty"`
	Inactive         bool                `json:"inactive"`
	CreatedBy        int64               `json:"created_by"`
}

// SalesRecord is the sales interaction a register originates from.
type SalesRecord struct {
	ID         int64 `json:"id"`
	CustomerID int64 `json:"customer_id"`
	Completed  bool  `json:"completed"`
	CampaignID int64 `json:"campaign_id"`
	SalesRepID int64 `json:"sales_rep_id"`
}

// Partner is a franchisee owning customers.
type Partner struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Option is one entry of a lookup list.
type Option struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// ServiceType is a billing item customers can subscribe to.
type ServiceType struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category int64  `json:"category"`
}
