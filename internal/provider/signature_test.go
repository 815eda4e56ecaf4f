package provider

import (
	"testing"
	"time"

	"github.com/streamhaven/mediasync/internal/config"
	"github.com/stretchr/testify/assert"
)

func newTestVerifier(secret string, tolerance time.Duration) *Verifier {
	return NewVerifier(config.ProviderConfig{
		WebhookSecret:      secret,
		SignatureTolerance: tolerance,
	})
}

func TestVerifyValidSignature(t *testing.T) {
	v := newTestVerifier("test-secret", 5*time.Minute)
	body := []byte(`{"type":"video.asset.ready","data":{"id":"as_1"}}`)

	header := Sign("test-secret", time.Now(), body)
	assert.True(t, v.Verify(header, body))
}

func TestVerifyWrongSecret(t *testing.T) {
	v := newTestVerifier("test-secret", 5*time.Minute)
	body := []byte(`{"type":"video.asset.ready"}`)

	header := Sign("other-secret", time.Now(), body)
	assert.False(t, v.Verify(header, body))
}

func TestVerifyTamperedBody(t *testing.T) {
	v := newTestVerifier("test-secret", 5*time.Minute)

	header := Sign("test-secret", time.Now(), []byte(`{"type":"a"}`))
	assert.False(t, v.Verify(header, []byte(`{"type":"b"}`)))
}

func TestVerifyStaleTimestamp(t *testing.T) {
	v := newTestVerifier("test-secret", 5*time.Minute)
	body := []byte(`{}`)

	header := Sign("test-secret", time.Now().Add(-time.Hour), body)
	assert.False(t, v.Verify(header, body))

	// Future timestamps beyond tolerance are rejected too
	header = Sign("test-secret", time.Now().Add(time.Hour), body)
	assert.False(t, v.Verify(header, body))
}

func TestVerifyZeroToleranceSkipsWindowCheck(t *testing.T) {
	v := newTestVerifier("test-secret", 0)
	body := []byte(`{}`)

	header := Sign("test-secret", time.Now().Add(-time.Hour), body)
	assert.True(t, v.Verify(header, body))
}

func TestVerifyMalformedHeader(t *testing.T) {
	v := newTestVerifier("test-secret", 5*time.Minute)
	body := []byte(`{}`)

	for _, header := range []string{
		"",
		"garbage",
		"t=abc,v1=deadbeef",
		"t=1700000000",
		"v1=deadbeef",
	} {
		assert.False(t, v.Verify(header, body), "header %q must be rejected", header)
	}
}

func TestVerifyEmptySecret(t *testing.T) {
	v := newTestVerifier("", 5*time.Minute)
	body := []byte(`{}`)

	header := Sign("", time.Now(), body)
	assert.False(t, v.Verify(header, body))
}

func TestBypassDisabledByDefault(t *testing.T) {
	v := NewVerifier(config.ProviderConfig{WebhookSecret: "s"})
	assert.False(t, v.BypassAllowed())
}
