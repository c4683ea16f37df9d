package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindIncome  TransactionKind = `income`
	KindExpense TransactionKind = `expense`
)

type TransactionStatus string

const (
	StatusPending  TransactionStatus = `pending`
	StatusApproved TransactionStatus = `approved`
	StatusPaid     TransactionStatus = `paid`
	StatusRejected TransactionStatus = `rejected`
)

type Transaction struct {
	ID        int               `json:"id" db:"id"`
	Kind      TransactionKind   `json:"kind" db:"kind"`
	Amount    decimal.Decimal   `json:"amount" db:"amount"`
	Date      time.Time         `json:"date" db:"occurred_on"`
	Category  string            `json:"category" db:"category"`
	ProjectID *int              `json:"projectId" db:"project_id"`
	ClientID  *int              `json:"clientId" db:"client_id"`
	Status    TransactionStatus `json:"status" db:"status"`
	Notes     string            `json:"notes" db:"notes"`
	CreatedAt time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time         `json:"updatedAt" db:"updated_at"`
}

// Realized reports whether the transaction counts toward realized totals.
// Pending and rejected rows stay out of every report.
func (t Transaction) Realized() bool {
	return t.Status == StatusApproved || t.Status == StatusPaid
}

type TransactionRequest struct {
	Kind      *TransactionKind   `json:"kind"`
	Amount    *decimal.Decimal   `json:"amount"`
	Date      *time.Time         `json:"date"`
	Category  *string            `json:"category"`
	ProjectID *int               `json:"projectId"`
	ClientID  *int               `json:"clientId"`
	Status    *TransactionStatus `json:"status"`
	Notes     *string            `json:"notes"`
}

type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = `draft`
	InvoiceSent      InvoiceStatus = `sent`
	InvoicePaid      InvoiceStatus = `paid`
	InvoiceCancelled InvoiceStatus = `cancelled`
)

type Invoice struct {
	ID        int             `json:"id" db:"id"`
	ClientID  int             `json:"clientId" db:"client_id"`
	Number    string          `json:"number" db:"number"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	IssuedAt  time.Time       `json:"issuedAt" db:"issued_at"`
	DueAt     time.Time       `json:"dueAt" db:"due_at"`
	Status    InvoiceStatus   `json:"status" db:"status"`
	Notified  bool            `json:"notified" db:"notified"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// Outstanding reports whether the invoice still counts toward receivables.
func (i Invoice) Outstanding() bool {
	return i.Status != InvoicePaid && i.Status != InvoiceCancelled
}

type InvoiceRequest struct {
	ClientID *int             `json:"clientId"`
	Number   *string          `json:"number"`
	Amount   *decimal.Decimal `json:"amount"`
	IssuedAt *time.Time       `json:"issuedAt"`
	DueAt    *time.Time       `json:"dueAt"`
	Status   *InvoiceStatus   `json:"status"`
}

type Project struct {
	ID        int             `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	ClientID  *int            `json:"clientId" db:"client_id"`
	Budget    decimal.Decimal `json:"budget" db:"budget"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

type Client struct {
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Company   string    `json:"company" db:"company"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
