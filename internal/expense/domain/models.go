package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	StatusPending    = "pending"
	StatusApproved   = "approved"
	StatusReimbursed = "reimbursed"
	StatusRejected   = "rejected"

	CategoryAccommodation = "accommodation"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusApproved, StatusReimbursed, StatusRejected:
		return true
	}
	return false
}

// Expense is money an employee spent on behalf of the company. EmployeeID
// and EmployeeName always come from the recording session.
type Expense struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	CompanyID     snowflake.ID   `gorm:"not null;index" json:"company_id"`
	MissionID     *snowflake.ID  `gorm:"index" json:"mission_id,omitempty"`
	EmployeeID    snowflake.ID   `gorm:"not null;index" json:"employee_id"`
	EmployeeName  string         `gorm:"type:text;not null" json:"employee_name"`
	Category      string         `gorm:"type:text;not null" json:"category"`
	Amount        int64          `gorm:"not null" json:"amount"`
	Date          time.Time      `gorm:"not null" json:"date"`
	Description   string         `gorm:"type:text" json:"description,omitempty"`
	Status        string         `gorm:"type:text;not null;index" json:"status"`
	ReviewedBy    *snowflake.ID  `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time     `json:"reviewed_at,omitempty"`
	TransactionID *snowflake.ID  `json:"transaction_id,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	Accommodation *Accommodation `gorm:"foreignKey:ExpenseID" json:"accommodation,omitempty"`
}

func (Expense) TableName() string { return "expenses" }

// Accommodation details a lodging expense. NetAmount is always
// ReimbursementAmount - ActualCost.
type Accommodation struct {
	ExpenseID           snowflake.ID `gorm:"primaryKey" json:"-"`
	CompanyID           snowflake.ID `gorm:"not null;index" json:"-"`
	ActualCost          int64        `gorm:"not null" json:"actual_cost"`
	ReimbursementAmount int64        `gorm:"not null" json:"reimbursement_amount"`
	NetAmount           int64        `gorm:"not null" json:"net_amount"`
	OutsourcingCompany  string       `gorm:"type:text" json:"outsourcing_company,omitempty"`
	InvoiceNumber       string       `gorm:"type:text" json:"invoice_number,omitempty"`
}

func (Accommodation) TableName() string { return "expense_accommodations" }
