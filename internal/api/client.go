package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"certdash/internal/core"
)

// Client talks to the remote trading API over HTTP.
type Client struct {
	base *BaseClient
}

var _ Backend = (*Client)(nil)

// NewClient returns a client rooted at baseURL.
func NewClient(baseURL string, httpClient HTTPDoer) *Client {
	return &Client{base: NewBaseClient(baseURL, httpClient)}
}

func bearer(token string) (map[string]string, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, headers map[string]string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
		body = b
	}

	status, respBody, err := c.base.Do(ctx, method, path, body, headers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{Op: op, StatusCode: status, Body: snippet(respBody)}
	}
	return respBody, nil
}

func (c *Client) authed(ctx context.Context, op, method, path, token string, payload any) ([]byte, error) {
	headers, err := bearer(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c.call(ctx, op, method, path, headers, payload)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// decodeList accepts both {"response": [...]} and a bare array.
func decodeList[T any](op string, body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	out := make([]T, 0)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decode %s response: %w", op, err)
		}
		return out, nil
	}
	var envelope struct {
		Response []T `json:"response"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", op, err)
	}
	if envelope.Response != nil {
		out = envelope.Response
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, creds core.Credentials) (string, error) {
	body, err := c.call(ctx, "login", http.MethodPost, "/login", nil, creds)
	if err != nil {
		if IsUnauthorized(err) {
			return "", fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return "", err
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if resp.Token == "" {
		return "", ErrEmptyToken
	}
	return resp.Token, nil
}

func (c *Client) SignUp(ctx context.Context, reg core.Registration) error {
	_, err := c.call(ctx, "signup", http.MethodPost, "/user/create", nil, reg)
	return err
}

func (c *Client) OwnedCertificates(ctx context.Context, token string) ([]core.Certificate, error) {
	body, err := c.authed(ctx, "owned certificates", http.MethodGet, "/certificate/owned", token, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[core.Certificate]("owned certificates", body)
}

func (c *Client) CertificatesFor(ctx context.Context, token string, period core.Period) ([]core.Certificate, error) {
	path := fmt.Sprintf("/certificate/from/%d/%d", period.Month, period.Year)
	body, err := c.authed(ctx, "certificates for period", http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[core.Certificate]("certificates for period", body)
}

func (c *Client) CreateCertificate(ctx context.Context, token string, req core.CertificateRequest) error {
	_, err := c.authed(ctx, "create certificate", http.MethodPost, "/certificate/create", token, req)
	return err
}

func (c *Client) Quote(ctx context.Context, token string, quantity int) (core.Quote, error) {
	path := fmt.Sprintf("/certificate/price/%d", quantity)
	body, err := c.authed(ctx, "quote", http.MethodGet, path, token, nil)
	if err != nil {
		return core.Quote{}, err
	}
	price, err := decodePrice(body)
	if err != nil {
		return core.Quote{}, fmt.Errorf("decode quote response: %w", err)
	}
	return core.Quote{Quantity: quantity, Price: price}, nil
}

// decodePrice reads {"price": n}, {"response": {"price": n}} or a bare number.
func decodePrice(body []byte) (float64, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		var n float64
		err := json.Unmarshal(trimmed, &n)
		return n, err
	}
	var resp struct {
		Price    *float64 `json:"price"`
		Response *struct {
			Price float64 `json:"price"`
		} `json:"response"`
	}
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return 0, err
	}
	switch {
	case resp.Price != nil:
		return *resp.Price, nil
	case resp.Response != nil:
		return resp.Response.Price, nil
	default:
		return 0, fmt.Errorf("no price field")
	}
}

func (c *Client) Buy(ctx context.Context, token string, purchase core.Purchase) error {
	_, err := c.authed(ctx, "buy", http.MethodPost, "/certificate/buy", token, purchase)
	return err
}

func (c *Client) Consumptions(ctx context.Context, token string, year int) ([]core.ConsumptionRecord, error) {
	body, err := c.authed(ctx, "consumptions", http.MethodGet, fmt.Sprintf("/consumptions/%d", year), token, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[core.ConsumptionRecord]("consumptions", body)
}

func (c *Client) Sold(ctx context.Context, token string) ([]core.TransactionRecord, error) {
	body, err := c.authed(ctx, "sold", http.MethodGet, "/certificate/sold", token, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[core.TransactionRecord]("sold", body)
}

func (c *Client) Bought(ctx context.Context, token string) ([]core.TransactionRecord, error) {
	body, err := c.authed(ctx, "bought", http.MethodGet, "/certificate/bought", token, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[core.TransactionRecord]("bought", body)
}
