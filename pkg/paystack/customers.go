package paystack

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/deliverydesk-backend/pkg/errors"
)

// Customer is the provider's customer record.
type Customer struct {
	ID           int64  `json:"id"`
	CustomerCode string `json:"customer_code"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
}

// CustomerParams describes a customer to create.
type CustomerParams struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// FetchCustomer looks a customer up by email or customer code. A missing
// customer is reported as CodeNotFound.
func (c *Client) FetchCustomer(ctx context.Context, emailOrCode string) (*Customer, error) {
	emailOrCode = strings.TrimSpace(emailOrCode)
	if emailOrCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email or code is required")
	}
	var out Customer
	if err := c.do(ctx, http.MethodGet, "/customer/"+url.PathEscape(emailOrCode), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCustomer registers a new customer.
func (c *Client) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	if strings.TrimSpace(params.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	var out Customer
	if err := c.do(ctx, http.MethodPost, "/customer", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DedicatedAccount is a bank account number assigned to a customer.
type DedicatedAccount struct {
	ID            int64  `json:"id"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	Assigned      bool   `json:"assigned"`
	Active        bool   `json:"active"`
	Bank          struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Slug string `json:"slug"`
	} `json:"bank"`
}

// CreateDedicatedAccount requests a dedicated account for customerCode at the
// preferred bank.
func (c *Client) CreateDedicatedAccount(ctx context.Context, customerCode, preferredBank string) (*DedicatedAccount, error) {
	if strings.TrimSpace(customerCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer code is required")
	}
	body := map[string]any{"customer": customerCode}
	if preferredBank != "" {
		body["preferred_bank"] = preferredBank
	}
	var out DedicatedAccount
	if err := c.do(ctx, http.MethodPost, "/dedicated_account", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
