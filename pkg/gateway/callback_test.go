package gateway

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storelane/storelane-backend/pkg/config"
)

func signedCallbackClient(t *testing.T) (*Client, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	client, err := NewClient(config.GatewayConfig{
		BaseURL:           "https://gw.example",
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		CallbackPublicKey: string(pemKey),
		HTTPTimeout:       time.Second,
	}, testLogger())
	require.NoError(t, err)
	return client, key
}

func signBody(t *testing.T, key *rsa.PrivateKey, body []byte) string {
	t.Helper()
	digest := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

func TestVerifyCallbackSignature(t *testing.T) {
	client, key := signedCallbackClient(t)
	body := []byte(`{"eventId":"evt-1","orderId":"gw-1","status":"completed","result":{"code":"000"}}`)

	sig := signBody(t, key, body)
	assert.True(t, client.VerifyCallbackSignature(body, sig))

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = '1'
	assert.False(t, client.VerifyCallbackSignature(tampered, sig))

	assert.False(t, client.VerifyCallbackSignature(body, "not-base64!!"))
}

func TestVerifyCallbackSignature_NoKeyConfigured(t *testing.T) {
	client, err := NewClient(config.GatewayConfig{
		BaseURL:      "https://gw.example",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, testLogger())
	require.NoError(t, err)

	assert.False(t, client.VerifyCallbackSignature([]byte(`{}`), "sig"))
}

func TestParseCallback(t *testing.T) {
	parsed := ParseCallback([]byte(`{"eventId":"evt-1","orderId":"gw-1","status":"COMPLETED","result":{"code":"000"}}`))
	require.NotNil(t, parsed)
	assert.Equal(t, "gw-1", parsed.GatewayOrderID)
	assert.Equal(t, "completed", parsed.Status)
	assert.Equal(t, "000", parsed.ResultCode)

	assert.Nil(t, ParseCallback([]byte(`not json`)))
	assert.Nil(t, ParseCallback([]byte(`{"status":"completed"}`)))
	assert.Nil(t, ParseCallback([]byte(`{"orderId":"gw-1"}`)))
}

func TestIsSuccessful(t *testing.T) {
	assert.True(t, IsSuccessful(&ParsedCallback{Status: "completed", ResultCode: "000"}))
	assert.False(t, IsSuccessful(&ParsedCallback{Status: "completed", ResultCode: "120"}))
	assert.False(t, IsSuccessful(&ParsedCallback{Status: "rejected", ResultCode: "000"}))
	assert.False(t, IsSuccessful(nil))
}

func TestChargeSuccessful(t *testing.T) {
	assert.True(t, ChargeSuccessful(&ChargeResult{Status: "completed", ResultCode: "000"}))
	assert.True(t, ChargeSuccessful(&ChargeResult{Status: "COMPLETED", ResultCode: "000"}))
	assert.False(t, ChargeSuccessful(&ChargeResult{Status: "completed", ResultCode: "120"}))
	assert.False(t, ChargeSuccessful(&ChargeResult{Status: "rejected", ResultCode: "000"}))
	assert.False(t, ChargeSuccessful(nil))
}

func TestIsRejected(t *testing.T) {
	assert.True(t, IsRejected(&ParsedCallback{Status: "rejected"}))
	assert.False(t, IsRejected(&ParsedCallback{Status: "completed"}))
	assert.False(t, IsRejected(nil))
}
