package tracking

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner() *Signer {
	return NewSigner("test-secret-key", "https://track.example.com/")
}

// ==========================
// Sign / Verify Tests
// ==========================

func TestSigner_SignVerify_RoundTrip(t *testing.T) {
	s := newTestSigner()

	tests := []struct {
		name    string
		purpose string
		extra   string
	}{
		{name: "open", purpose: PurposeOpen, extra: ""},
		{name: "click with target", purpose: PurposeClick, extra: "https://example.com/promo"},
		{name: "unsubscribe", purpose: PurposeUnsubscribe, extra: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := s.Sign(tt.purpose, 42, 7, tt.extra)
			require.NotEmpty(t, sig)
			assert.True(t, s.Verify(tt.purpose, 42, 7, tt.extra, sig))
		})
	}
}

func TestSigner_Verify_Rejects(t *testing.T) {
	s := newTestSigner()
	sig := s.Sign(PurposeOpen, 42, 7, "")

	tests := []struct {
		name      string
		purpose   string
		campaign  int64
		recipient int64
		extra     string
		signature string
	}{
		{name: "empty signature", purpose: PurposeOpen, campaign: 42, recipient: 7, signature: ""},
		{name: "tampered signature", purpose: PurposeOpen, campaign: 42, recipient: 7, signature: sig[:len(sig)-1] + "x"},
		{name: "different campaign", purpose: PurposeOpen, campaign: 43, recipient: 7, signature: sig},
		{name: "different recipient", purpose: PurposeOpen, campaign: 42, recipient: 8, signature: sig},
		{name: "different purpose", purpose: PurposeClick, campaign: 42, recipient: 7, signature: sig},
		{name: "extra injected", purpose: PurposeOpen, campaign: 42, recipient: 7, extra: "x", signature: sig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, s.Verify(tt.purpose, tt.campaign, tt.recipient, tt.extra, tt.signature))
		})
	}
}

func TestSigner_Verify_WrongSecret(t *testing.T) {
	sig := NewSigner("secret-a", "https://track.example.com").Sign(PurposeOpen, 1, 2, "")
	other := NewSigner("secret-b", "https://track.example.com")

	assert.False(t, other.Verify(PurposeOpen, 1, 2, "", sig))
}

func TestSigner_Sign_URLSafe(t *testing.T) {
	s := newTestSigner()
	sig := s.Sign(PurposeClick, 999, 12345, "https://example.com/a?b=c&d=e")

	assert.NotContains(t, sig, "+")
	assert.NotContains(t, sig, "/")
	assert.NotContains(t, sig, "=")
}

// ==========================
// URL Builder Tests
// ==========================

func TestSigner_OpenPixelURL(t *testing.T) {
	s := newTestSigner()
	u := s.OpenPixelURL(42, 7)

	assert.True(t, strings.HasPrefix(u, "https://track.example.com/t/open/42/7.png?s="))

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.True(t, s.Verify(PurposeOpen, 42, 7, "", parsed.Query().Get("s")))
}

func TestSigner_ClickURL(t *testing.T) {
	s := newTestSigner()
	target := "https://example.com/promo?code=SPRING&x=1"
	u := s.ClickURL(42, 7, target)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "/t/click/42/7", parsed.Path)
	assert.Equal(t, target, parsed.Query().Get("u"))
	assert.True(t, s.Verify(PurposeClick, 42, 7, target, parsed.Query().Get("s")))
}

func TestSigner_UnsubscribeURL(t *testing.T) {
	s := newTestSigner()
	u := s.UnsubscribeURL(42, 7)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "/t/unsub/42/7", parsed.Path)
	assert.True(t, s.Verify(PurposeUnsubscribe, 42, 7, "", parsed.Query().Get("s")))
}

func TestSigner_BaseURLTrailingSlash(t *testing.T) {
	withSlash := NewSigner("k", "https://track.example.com/")
	withoutSlash := NewSigner("k", "https://track.example.com")

	assert.Equal(t, withoutSlash.OpenPixelURL(1, 2), withSlash.OpenPixelURL(1, 2))
}
