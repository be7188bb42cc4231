package gateway

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"strings"
)

var errNotRSAPublicKey = errors.New("callback key is not an RSA public key")

// ParseCallbackKey decodes the PEM-encoded RSA public key the provider signs
// callbacks with.
func ParseCallbackKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("callback key is not valid PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errNotRSAPublicKey
	}
	return key, nil
}

// VerifyCallbackSignature checks the provider's signature over the exact raw
// callback bytes. It must run before any JSON decoding because re-serialized
// JSON is not guaranteed to be byte-identical.
func (c *Client) VerifyCallbackSignature(rawBody []byte, signatureHeader string) bool {
	key := c.callbackKey()
	if key == nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureHeader))
	if err != nil {
		return false
	}
	digest := sha256.Sum256(rawBody)
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig) == nil
}

func (c *Client) callbackKey() *rsa.PublicKey {
	if strings.TrimSpace(c.cfg.CallbackPublicKey) == "" {
		return nil
	}
	key, err := ParseCallbackKey(c.cfg.CallbackPublicKey)
	if err != nil {
		c.logger.Warn(context.Background(), "gateway callback key unparsable")
		return nil
	}
	return key
}

type callbackBody struct {
	EventID string `json:"eventId"`
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Result  struct {
		Code string `json:"code"`
	} `json:"result"`
}

// ParseCallback extracts the order id, coarse status, and provider result
// code from a webhook body. Returns nil for malformed or irrelevant payloads.
func ParseCallback(body []byte) *ParsedCallback {
	var cb callbackBody
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil
	}
	if cb.OrderID == "" || cb.Status == "" {
		return nil
	}
	return &ParsedCallback{
		GatewayOrderID: cb.OrderID,
		EventID:        cb.EventID,
		Status:         strings.ToLower(cb.Status),
		ResultCode:     cb.Result.Code,
	}
}

// IsSuccessful reports whether a callback represents a confirmed payment.
// Status alone is not enough; the provider reports completed with non-success
// codes for some edge cases.
func IsSuccessful(parsed *ParsedCallback) bool {
	if parsed == nil {
		return false
	}
	return parsed.Status == statusCompleted && parsed.ResultCode == resultCodeSuccess
}

// IsRejected reports a definitive payment failure.
func IsRejected(parsed *ParsedCallback) bool {
	if parsed == nil {
		return false
	}
	return parsed.Status == statusRejected
}

// DetailsSuccessful mirrors IsSuccessful for the polling receipt shape.
func DetailsSuccessful(details *PaymentDetails) bool {
	if details == nil {
		return false
	}
	return strings.ToLower(details.Status) == statusCompleted && details.ResultCode == resultCodeSuccess
}

// ChargeSuccessful reports whether a stored-method charge was confirmed.
// The same rule as IsSuccessful applies: status and result code must both
// match, and the provider is not consistent about status casing.
func ChargeSuccessful(result *ChargeResult) bool {
	if result == nil {
		return false
	}
	return strings.ToLower(result.Status) == statusCompleted && result.ResultCode == resultCodeSuccess
}

// DetailsRejected mirrors IsRejected for the polling receipt shape.
func DetailsRejected(details *PaymentDetails) bool {
	if details == nil {
		return false
	}
	return strings.ToLower(details.Status) == statusRejected
}
