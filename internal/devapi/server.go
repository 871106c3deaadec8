package devapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-invoice-session/apiauth"
	"github.com/jrsteele09/go-invoice-session/apiclient"
	"github.com/rs/zerolog"
)

// Server is a stand-in for the invoicing API. Every signed-in user gets a seeded business
// with a few customers and invoices on first use.
type Server struct {
	mux      *http.ServeMux
	logger   zerolog.Logger
	nowFunc  func() time.Time
	accounts map[string]*account // subject -> data
	lock     sync.Mutex
}

type account struct {
	business  apiclient.Business
	customers []apiclient.Customer
	invoices  []apiclient.Invoice
}

func New(verifier apiauth.TokenVerifier, logger zerolog.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		nowFunc:  time.Now,
		accounts: make(map[string]*account),
	}

	mw := []func(http.HandlerFunc) http.HandlerFunc{
		RequestIDMiddleware,
		LoggingMiddleware(logger),
		RecoverMiddleware(logger),
		apiauth.RequireBearer(verifier, logger),
	}
	s.mux.HandleFunc("GET /business", ChainMiddleware(s.handleBusiness, mw...))
	s.mux.HandleFunc("GET /customers", ChainMiddleware(s.handleCustomers, mw...))
	s.mux.HandleFunc("GET /invoices", ChainMiddleware(s.handleInvoices, mw...))
	s.mux.HandleFunc("GET /invoices/{id}", ChainMiddleware(s.handleInvoice, mw...))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleBusiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.accountFor(r).business)
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.accountFor(r).customers)
}

func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.accountFor(r).invoices)
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, inv := range s.accountFor(r).invoices {
		if inv.ID == id || inv.Number == id {
			writeJSON(w, http.StatusOK, inv)
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", "Invoice not found")
}

func (s *Server) accountFor(r *http.Request) *account {
	claims, _ := apiauth.ClaimsFromContext(r.Context())

	s.lock.Lock()
	defer s.lock.Unlock()
	if a, ok := s.accounts[claims.Subject]; ok {
		return a
	}
	a := seedAccount(claims, s.nowFunc())
	s.accounts[claims.Subject] = a
	return a
}

func seedAccount(claims *apiauth.Claims, now time.Time) *account {
	issued := now.UTC().Truncate(24 * time.Hour)
	customers := []apiclient.Customer{
		{ID: uuid.NewString(), Name: "Northwind Traders", Email: "accounts@northwind.test"},
		{ID: uuid.NewString(), Name: "Globex Corporation", Email: "billing@globex.test"},
	}
	return &account{
		business: apiclient.Business{
			ID:       uuid.NewString(),
			Name:     "My Business",
			Email:    claims.Email,
			Currency: "GBP",
		},
		customers: customers,
		invoices: []apiclient.Invoice{
			{
				ID:         uuid.NewString(),
				Number:     "INV-0001",
				CustomerID: customers[0].ID,
				Status:     apiclient.InvoicePaid,
				Currency:   "GBP",
				Total:      125000,
				IssuedAt:   issued.AddDate(0, -1, 0),
				DueAt:      issued.AddDate(0, -1, 30),
			},
			{
				ID:         uuid.NewString(),
				Number:     "INV-0002",
				CustomerID: customers[1].ID,
				Status:     apiclient.InvoiceSent,
				Currency:   "GBP",
				Total:      48000,
				IssuedAt:   issued,
				DueAt:      issued.AddDate(0, 0, 30),
			},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
