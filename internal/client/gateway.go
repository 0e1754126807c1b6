package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"docforge-backend/internal/config"

	"github.com/shopspring/decimal"
)

type GatewayStatus string

const (
	GatewayStatusSuccess GatewayStatus = "SUCCESS"
	GatewayStatusPending GatewayStatus = "PENDING"
	GatewayStatusUnknown GatewayStatus = "UNKNOWN"
)

// PaymentReference is the scannable payment handle returned to the paying
// user. QRCode is a base64 data URI when the image could be inlined, the
// raw gateway URL otherwise.
type PaymentReference struct {
	OrderNo string
	QRCode  string
}

type GatewayClient interface {
	CreateNativePay(ctx context.Context, orderNo string, amount int, subject string) (*PaymentReference, error)
	QueryOrder(ctx context.Context, orderNo string) (GatewayStatus, error)
}

// QRFetcher downloads a QR image and returns it as a data URI. It is a
// best-effort enhancement: callers fall back to the raw URL on any error.
type QRFetcher interface {
	FetchDataURI(ctx context.Context, imageURL string) (string, error)
}

type gatewayClientImpl struct {
	httpClient *http.Client
	qrFetcher  QRFetcher
	apiBase    string
	merchantID string
	secretKey  string
	notifyURL  string
}

// gateway response codes that mean success
var successCodes = map[string]bool{"0": true, "200": true}

// code returned by the gateway while the order is not yet visible
const codeOrderNotFound = "777"

func NewGatewayClient(cfg *config.Gateway) (GatewayClient, error) {
	return newGatewayClient(cfg, &httpQRFetcher{
		httpClient: &http.Client{Timeout: 5 * time.Second},
	})
}

func newGatewayClient(cfg *config.Gateway, fetcher QRFetcher) (GatewayClient, error) {
	var missing []string
	if cfg.MerchantID == "" {
		missing = append(missing, "GATEWAY_MERCHANT_ID")
	}
	if cfg.SecretKey == "" {
		missing = append(missing, "GATEWAY_SECRET_KEY")
	}
	if cfg.NotifyURL == "" {
		missing = append(missing, "GATEWAY_NOTIFY_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("gateway config missing: %s", strings.Join(missing, ", "))
	}

	return &gatewayClientImpl{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		qrFetcher:  fetcher,
		apiBase:    sanitizeGatewayURL(cfg.APIBase),
		merchantID: cfg.MerchantID,
		secretKey:  cfg.SecretKey,
		notifyURL:  cfg.NotifyURL,
	}, nil
}

// sanitizeGatewayURL fixes the common configuration mistakes around the
// gateway base URL: the documentation-site domain pasted in place of the
// API domain, duplicated /api/api prefixes and doubled slashes.
func sanitizeGatewayURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.ReplaceAll(u, "open.pay.yungouos.com", "api.pay.yungouos.com")
	u = strings.ReplaceAll(u, "/api/api/", "/api/")
	if scheme, rest, ok := strings.Cut(u, "://"); ok {
		for strings.Contains(rest, "//") {
			rest = strings.ReplaceAll(rest, "//", "/")
		}
		u = scheme + "://" + rest
	}
	return strings.TrimRight(u, "/")
}

func joinGatewayURL(base, path string) string {
	return sanitizeGatewayURL(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"))
}

type gatewayResponse struct {
	Code flexString      `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// flexString decodes a JSON value that the gateway serializes sometimes
// as a string and sometimes as a number ("0" vs 0).
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

func (c *gatewayClientImpl) CreateNativePay(ctx context.Context, orderNo string, amount int, subject string) (*PaymentReference, error) {
	// the gateway expects major units with two fraction digits
	totalFee := decimal.NewFromInt(int64(amount)).Div(decimal.NewFromInt(100)).StringFixed(2)

	params := map[string]string{
		"out_trade_no": orderNo,
		"total_fee":    totalFee,
		"mch_id":       c.merchantID,
		"body":         subject,
		"type":         "2", // return a QR code link
		"notify_url":   c.notifyURL,
	}
	params["sign"] = Sign(params, []string{"out_trade_no", "total_fee", "mch_id", "body"}, c.secretKey)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	apiURL := joinGatewayURL(c.apiBase, "/api/pay/alipay/nativePay")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build native pay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("native pay request: %w", err)
	}
	defer resp.Body.Close()

	var result gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode native pay response: %w", err)
	}

	if !successCodes[string(result.Code)] {
		msg := result.Msg
		if msg == "" {
			msg = "create payment order failed"
		}
		return nil, fmt.Errorf("gateway error %s: %s", result.Code, msg)
	}

	var qrURL string
	if err := json.Unmarshal(result.Data, &qrURL); err != nil || qrURL == "" {
		return nil, fmt.Errorf("native pay response missing QR url: %s", string(result.Data))
	}

	return &PaymentReference{
		OrderNo: orderNo,
		QRCode:  c.inlineQRCode(ctx, qrURL),
	}, nil
}

// inlineQRCode tries to turn the QR url into a self-contained data URI so
// the frontend is not subject to cross-origin and protocol restrictions.
// Any failure falls back to the raw URL.
func (c *gatewayClientImpl) inlineQRCode(ctx context.Context, qrURL string) string {
	dataURI, err := c.qrFetcher.FetchDataURI(ctx, qrURL)
	if err != nil {
		slog.Warn("QR image inlining failed, falling back to raw url", "url", qrURL, "error", err)
		return qrURL
	}
	return dataURI
}

func (c *gatewayClientImpl) QueryOrder(ctx context.Context, orderNo string) (GatewayStatus, error) {
	params := map[string]string{
		"out_trade_no": orderNo,
		"mch_id":       c.merchantID,
	}
	params["sign"] = Sign(params, []string{"out_trade_no", "mch_id"}, c.secretKey)

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	apiURL := joinGatewayURL(c.apiBase, "/api/system/order/getPayOrderInfo") + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return GatewayStatusUnknown, fmt.Errorf("build query request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return GatewayStatusUnknown, fmt.Errorf("query order request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GatewayStatusUnknown, fmt.Errorf("read query response: %w", err)
	}

	var result gatewayResponse
	if err := json.Unmarshal(body, &result); err != nil {
		// garbled response: conservatively not paid
		slog.Warn("unparseable gateway query response", "order_no", orderNo, "body", string(body))
		return GatewayStatusUnknown, nil
	}

	if string(result.Code) == codeOrderNotFound {
		slog.Debug("gateway has no record of order yet", "order_no", orderNo)
		return GatewayStatusPending, nil
	}

	if !successCodes[string(result.Code)] {
		slog.Warn("gateway query rejected", "order_no", orderNo, "code", result.Code, "msg", result.Msg)
		return GatewayStatusUnknown, nil
	}

	var data struct {
		PayStatus flexString `json:"payStatus"`
		PayNo     string     `json:"payNo"`
	}
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return GatewayStatusUnknown, nil
	}

	if data.PayStatus == "1" {
		return GatewayStatusSuccess, nil
	}
	return GatewayStatusPending, nil
}

type httpQRFetcher struct {
	httpClient *http.Client
}

func (f *httpQRFetcher) FetchDataURI(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch QR image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch QR image: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read QR image: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw), nil
}
