package apiclient

import "time"

type Business struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Currency string `json:"currency"`
}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "draft"
	InvoiceSent  InvoiceStatus = "sent"
	InvoicePaid  InvoiceStatus = "paid"
)

// Invoice amounts are in minor currency units.
type Invoice struct {
	ID         string        `json:"id"`
	Number     string        `json:"number"`
	CustomerID string        `json:"customerId"`
	Status     InvoiceStatus `json:"status"`
	Currency   string        `json:"currency"`
	Total      int64         `json:"total"`
	IssuedAt   time.Time     `json:"issuedAt"`
	DueAt      time.Time     `json:"dueAt"`
}
