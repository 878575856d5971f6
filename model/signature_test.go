package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)

	assert.True(t, VerifySignature("s", body, SignPayload("s", body)))
	assert.False(t, VerifySignature("s", body, SignPayload("other", body)))
	assert.False(t, VerifySignature("s", []byte("tampered"), SignPayload("s", body)))
	assert.False(t, VerifySignature("s", body, "md5=abc"))
	assert.False(t, VerifySignature("s", body, ""))
}
