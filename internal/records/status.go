package records

import "fmt"

// CommRegStatus is the lifecycle status of a commencement register.
type CommRegStatus int

const (
	CommRegInTrial       CommRegStatus = 1
	CommRegSigned        CommRegStatus = 2
	CommRegCancelled     CommRegStatus = 3
	CommRegChanged       CommRegStatus = 7
	CommRegTrialComplete CommRegStatus = 8
	CommRegScheduled     CommRegStatus = 9
	CommRegQuote         CommRegStatus = 10
	CommRegWaitingTNC    CommRegStatus = 11
)

var commRegStatusNames = map[CommRegStatus]string{
	CommRegInTrial:       "In Trial",
	CommRegSigned:        "Signed",
	CommRegCancelled:     "Cancelled",
	CommRegChanged:       "Changed",
	CommRegTrialComplete: "Trial Complete",
	CommRegScheduled:     "Scheduled",
	CommRegQuote:         "Quote",
	CommRegWaitingTNC:    "Waiting T&C",
}

func (s CommRegStatus) String() string {
	if name, ok := commRegStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("CommRegStatus(%d)", int(s))
}

// Code returns the numeric list value stored for the status.
func (s CommRegStatus) Code() int64 { return int64(s) }

// OpenCommRegStatuses are the statuses of a register still being prepared or trialled.
// A customer may hold at most one register in any of them.
var OpenCommRegStatuses = []CommRegStatus{CommRegWaitingTNC, CommRegScheduled, CommRegInTrial}

// ServiceChangeStatus is the status of a service change.
type ServiceChangeStatus int

const (
	ChangeScheduled ServiceChangeStatus = 1
	ChangeActive    ServiceChangeStatus = 2
	ChangeCeased    ServiceChangeStatus = 3
	ChangeQuote     ServiceChangeStatus = 4
	ChangeLead      ServiceChangeStatus = 5
	ChangeInactive  ServiceChangeStatus = 6
)

var changeStatusNames = map[ServiceChangeStatus]string{
	ChangeScheduled: "Scheduled",
	ChangeActive:    "Active",
	ChangeCeased:    "Ceased",
	ChangeQuote:     "Quote",
	ChangeLead:      "Lead",
	ChangeInactive:  "Inactive",
}

func (s ServiceChangeStatus) String() string {
	if name, ok := changeStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ServiceChangeStatus(%d)", int(s))
}

// Code returns the numeric list value stored for the status.
func (s ServiceChangeStatus) Code() int64 { return int64(s) }

// CustomerStatus is the account status of a customer.
type CustomerStatus int

// CustomerSigned marks a customer with a signed agreement.
const CustomerSigned CustomerStatus = 13

// Code returns the numeric list value stored for the status.
func (s CustomerStatus) Code() int64 { return int64(s) }

// Change types recorded on service changes.
const (
	ChangeTypeExtraService        = "Extra Service"
	ChangeTypeReductionOfService  = "Reduction of Service"
	ChangeTypeNewCustomer         = "New Customer"
	ChangeTypeChangeOfService     = "Change of Service"
	ChangeTypeIncreaseOfFrequency = "Increase of Frequency"
	ChangeTypeDecreaseOfFrequency = "Decrease of Frequency"
	ChangeTypePriceIncrease       = "Price Increase"
	ChangeTypePriceDecrease       = "Price Decrease"
)

// ServiceCategoryServices is the service category billed through customer item pricing.
const ServiceCategoryServices int64 = 1

// PriceLevelCustom is the item pricing level that uses an explicit unit price.
const PriceLevelCustom int64 = -1
