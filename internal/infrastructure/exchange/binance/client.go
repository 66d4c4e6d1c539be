package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mmon/internal/infrastructure/exchange"
)

const Name = "binance"

// ===== Credentials 凭证 =====

// Credentials 包含 API 凭证和签名方法
type Credentials struct {
	apiKey    string
	apiSecret string
}

// NewCredentials 创建凭证对象
func NewCredentials(apiKey, apiSecret string) *Credentials {
	return &Credentials{
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

// Sign 生成 HMAC-SHA256 签名
func (c *Credentials) Sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// APIKey 返回 API Key
func (c *Credentials) APIKey() string {
	return c.apiKey
}

// apiError is the error body Binance returns with a non-200 status or inline.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// signedGet sends a signed GET and decodes the body into out.
func signedGet(ctx context.Context, rc *exchange.RESTClient, creds *Credentials, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if params.Get("recvWindow") == "" {
		params.Set("recvWindow", "5000")
	}

	query := params.Encode()
	query += "&signature=" + creds.Sign(query)
	endpoint, err := exchange.BuildQueryURL(rc.BaseURL(), path, query)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", creds.APIKey())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := rc.Do(req)
	if err != nil {
		return err
	}

	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Code < 0 {
		return fmt.Errorf("binance api error %d: %s", ae.Code, ae.Msg)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode binance %s failed: %w", path, err)
	}
	return nil
}
