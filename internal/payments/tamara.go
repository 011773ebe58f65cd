package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

/*
Tamara wraps the subset of the Tamara Checkout API this service uses.

The sandbox and production hosts share the same paths; the base URL and
the bearer token come from configuration. All amounts go over the wire
as decimal strings in SAR.
*/

type Tamara struct {
	baseURL string // e.g. https://api-sandbox.tamara.co
	token   string // partner API token (JWT)
	client  *http.Client
}

func NewTamara(baseURL, token string) *Tamara {
	return &Tamara{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Money is Tamara's amount object. Amount is serialized as a number with
// two decimals.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func SARFromCents(cents int) Money {
	return Money{Amount: float64(cents) / 100, Currency: "SAR"}
}

type CheckoutItem struct {
	ReferenceID string `json:"reference_id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	TotalAmount Money  `json:"total_amount"`
}

type Consumer struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

type MerchantURLs struct {
	Success      string `json:"success"`
	Failure      string `json:"failure"`
	Cancel       string `json:"cancel"`
	Notification string `json:"notification"`
}

type CheckoutRequest struct {
	TotalAmount      Money          `json:"total_amount"`
	ShippingAmount   Money          `json:"shipping_amount"`
	TaxAmount        Money          `json:"tax_amount"`
	OrderReferenceID string         `json:"order_reference_id"`
	Items            []CheckoutItem `json:"items"`
	Consumer         Consumer       `json:"consumer"`
	CountryCode      string         `json:"country_code"`
	Description      string         `json:"description"`
	MerchantURL      MerchantURLs   `json:"merchant_url"`
	PaymentType      string         `json:"payment_type"`
	Instalments      int            `json:"instalments,omitempty"`
}

type CheckoutResponse struct {
	OrderID     string `json:"order_id"`
	CheckoutID  string `json:"checkout_id"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
}

type Order struct {
	OrderID          string `json:"order_id"`
	OrderReferenceID string `json:"order_reference_id"`
	Status           string `json:"status"`
	TotalAmount      Money  `json:"total_amount"`
}

func (t *Tamara) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)

	res, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("tamara %s %s: %s | %s", method, path, res.Status, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// CreateCheckout opens a checkout session: POST /checkout
func (t *Tamara) CreateCheckout(ctx context.Context, in CheckoutRequest) (*CheckoutResponse, error) {
	var out CheckoutResponse
	if err := t.do(ctx, http.MethodPost, "/checkout", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder fetches order details: GET /orders/{orderID}
func (t *Tamara) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var out Order
	if err := t.do(ctx, http.MethodGet, "/orders/"+orderID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthorizeOrder captures merchant approval: POST /orders/{orderID}/authorise
func (t *Tamara) AuthorizeOrder(ctx context.Context, orderID string) (*Order, error) {
	var out Order
	if err := t.do(ctx, http.MethodPost, "/orders/"+orderID+"/authorise", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder voids an order: POST /orders/{orderID}/cancel
func (t *Tamara) CancelOrder(ctx context.Context, orderID string, total Money) error {
	in := map[string]any{"total_amount": total}
	return t.do(ctx, http.MethodPost, "/orders/"+orderID+"/cancel", in, nil)
}

// PaymentType is one instalment option offered at checkout.
type PaymentType struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MinLimit    Money  `json:"min_limit"`
	MaxLimit    Money  `json:"max_limit"`
}

// PaymentTypes lists available options: GET /checkout/payment-types
func (t *Tamara) PaymentTypes(ctx context.Context, country, currency string) ([]PaymentType, error) {
	path := fmt.Sprintf("/checkout/payment-types?country=%s&currency=%s", country, currency)
	var out []PaymentType
	if err := t.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
