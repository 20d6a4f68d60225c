package webhook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature_Valid(t *testing.T) {
	secret := "8f742231b10e8888abcd99yyyzzz85a5"
	body := []byte(`{"type":"event_callback"}`)
	now := time.Unix(1700000000, 0)
	timestamp := "1700000000"

	signature := computeSignature(secret, timestamp, body)

	assert.True(t, verifySignature(secret, timestamp, signature, body, now))
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{"type":"event_callback"}`)
	now := time.Unix(1700000000, 0)
	timestamp := "1700000000"

	signature := computeSignature("the-wrong-secret", timestamp, body)

	assert.False(t, verifySignature("the-right-secret", timestamp, signature, body, now))
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	secret := "s3cr3t"
	now := time.Unix(1700000000, 0)
	timestamp := "1700000000"

	signature := computeSignature(secret, timestamp, []byte("original"))

	assert.False(t, verifySignature(secret, timestamp, signature, []byte("tampered"), now))
}

func TestVerifySignature_ReplayWindow(t *testing.T) {
	secret := "s3cr3t"
	body := []byte("{}")
	now := time.Unix(1700000000, 0)

	// Six minutes old: outside the window
	stale := fmt.Sprintf("%d", now.Add(-6*time.Minute).Unix())
	assert.False(t, verifySignature(secret, stale, computeSignature(secret, stale, body), body, now))

	// Four minutes old: inside the window
	fresh := fmt.Sprintf("%d", now.Add(-4*time.Minute).Unix())
	assert.True(t, verifySignature(secret, fresh, computeSignature(secret, fresh, body), body, now))

	// Timestamps from the future are rejected too
	future := fmt.Sprintf("%d", now.Add(6*time.Minute).Unix())
	assert.False(t, verifySignature(secret, future, computeSignature(secret, future, body), body, now))
}

func TestVerifySignature_MissingPieces(t *testing.T) {
	now := time.Unix(1700000000, 0)

	assert.False(t, verifySignature("", "1700000000", "v0=abc", []byte("{}"), now))
	assert.False(t, verifySignature("s3cr3t", "", "v0=abc", []byte("{}"), now))
	assert.False(t, verifySignature("s3cr3t", "1700000000", "", []byte("{}"), now))
	assert.False(t, verifySignature("s3cr3t", "not-a-number", "v0=abc", []byte("{}"), now))
}
