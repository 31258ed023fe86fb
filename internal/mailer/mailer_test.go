package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeJob(t *testing.T) {
	payload, err := EncodeJob(Job{
		To:   "owner@example.com",
		Link: "https://portal.example/?type=recovery&token=abc",
	})
	require.NoError(t, err)

	job, err := DecodeJob(payload)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", job.To)
	assert.Equal(t, "https://portal.example/?type=recovery&token=abc", job.Link)
}

func TestEncodeJobRequiresRecipientAndLink(t *testing.T) {
	_, err := EncodeJob(Job{Link: "https://portal.example"})
	assert.Error(t, err)

	_, err = EncodeJob(Job{To: "owner@example.com"})
	assert.Error(t, err)
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	_, err := DecodeJob([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeJob([]byte(`{"link":"https://portal.example"}`))
	assert.Error(t, err)
}

func TestMessageCarriesHeadersAndLink(t *testing.T) {
	msg := string(Message("no-reply@aussieverify.example", Job{
		To:   "owner@example.com",
		Link: "https://portal.example/?type=recovery&token=abc",
	}))

	assert.Contains(t, msg, "From: no-reply@aussieverify.example\r\n")
	assert.Contains(t, msg, "To: owner@example.com\r\n")
	assert.Contains(t, msg, "Subject: Reset your Aussie Verify password\r\n")
	assert.Contains(t, msg, "https://portal.example/?type=recovery&token=abc")
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New("", "no-reply@aussieverify.example")
	assert.Error(t, err)

	_, err = New("smtp.example:587", " ")
	assert.Error(t, err)

	m, err := New("smtp.example:587", "no-reply@aussieverify.example")
	require.NoError(t, err)
	assert.NotNil(t, m)
}
