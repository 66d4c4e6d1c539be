package bybit

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

const Name = "bybit"

// Credentials 包含 API 凭证和签名方法
type Credentials struct {
	apiKey    string
	apiSecret string
}

func NewCredentials(apiKey, apiSecret string) *Credentials {
	return &Credentials{apiKey: apiKey, apiSecret: apiSecret}
}

// Sign 生成 HMAC-SHA256 签名（hex）
func (c *Credentials) Sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Credentials) APIKey() string {
	return c.apiKey
}

// envelope V5 统一响应
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func decodeEnvelope(path string, body []byte, out interface{}) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode bybit %s failed: %w", path, err)
	}
	if env.RetCode != 0 {
		return fmt.Errorf("bybit api error %d: %s", env.RetCode, env.RetMsg)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode bybit %s result failed: %w", path, err)
	}
	return nil
}

// publicGet sends an unsigned GET and decodes result into out.
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

// signedGet 发送带 query 的签名请求
// Bybit V5 signature: timestamp + apiKey + recvWindow + queryString
func signedGet(ctx context.Context, rc *exchange.RESTClient, creds *Credentials, path string, params url.Values, out interface{}) error {
	var query string
	if params != nil {
		query = params.Encode()
	}
	req, err := rc.NewRequest(ctx, http.MethodGet, path, params)
	if err != nil {
		return err
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	recvWindow := "5000"
	signature := creds.Sign(timestamp + creds.APIKey() + recvWindow + query)

	req.Header.Set("X-BAPI-API-KEY", creds.APIKey())
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", signature)

	body, err := rc.Do(req)
	if err != nil {
		return err
	}
	return decodeEnvelope(path, body, out)
}
