package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"mmon/internal/infrastructure/exchange"
)

const Name = "okx"

// Credentials 包含 OKX API 凭证和签名方法
type Credentials struct {
	apiKey     string
	apiSecret  string
	passphrase string
}

func NewCredentials(apiKey, apiSecret, passphrase string) *Credentials {
	return &Credentials{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		passphrase: passphrase,
	}
}

// Sign 生成 OKX HMAC-SHA256 签名
// OKX 签名: BASE64(HMAC-SHA256(timestamp + method + requestPath + body, secretKey))
func (c *Credentials) Sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (c *Credentials) APIKey() string { return c.apiKey }

func (c *Credentials) Passphrase() string { return c.passphrase }

// envelope OKX 统一响应，code 为字符串 "0" 表示成功
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decodeEnvelope(path string, body []byte, out interface{}) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode okx %s failed: %w", path, err)
	}
	if env.Code != "0" {
		return fmt.Errorf("okx api error %s: %s", env.Code, env.Msg)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode okx %s data failed: %w", path, err)
	}
	return nil
}

func publicGet(ctx context.Context, rc *exchange.RESTClient, path string, params url.Values, out interface{}) error {
	req, err := rc.NewRequest(ctx, http.MethodGet, path, params)
	if err != nil {
		return err
	}
	body, err := rc.Do(req)
	if err != nil {
		return err
	}
	return decodeEnvelope(path, body, out)
}

// signedGet 发送签名 GET；requestPath 需要带上 query
func signedGet(ctx context.Context, rc *exchange.RESTClient, creds *Credentials, path string, params url.Values, out interface{}) error {
	req, err := rc.NewRequest(ctx, http.MethodGet, path, params)
	if err != nil {
		return err
	}
	requestPath := path
	if q := params.Encode(); q != "" {
		requestPath += "?" + q
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	signature := creds.Sign(timestamp + http.MethodGet + requestPath)

	req.Header.Set("OK-ACCESS-KEY", creds.APIKey())
	req.Header.Set("OK-ACCESS-SIGN", signature)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", creds.Passphrase())

	body, err := rc.Do(req)
	if err != nil {
		return err
	}
	return decodeEnvelope(path, body, out)
}
