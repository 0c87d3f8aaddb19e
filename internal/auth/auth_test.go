package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)

	_, ok = BearerToken("")
	assert.False(t, ok)
}

func TestValidIssuer(t *testing.T) {
	p := &Provider{}
	assert.True(t, p.validIssuer(Claims{Issuer: "anything"}))

	p = &Provider{issuer: "https://issuer.example"}
	assert.True(t, p.validIssuer(Claims{Issuer: "https://issuer.example"}))
	assert.False(t, p.validIssuer(Claims{Issuer: "https://other.example"}))
}

func TestValidAudience(t *testing.T) {
	p := &Provider{}
	assert.True(t, p.validAudience(Claims{Audience: nil}))

	p = &Provider{audiences: map[string]struct{}{"them": {}}}
	assert.True(t, p.validAudience(Claims{Audience: []string{"us", "them"}}))
	assert.False(t, p.validAudience(Claims{Audience: []string{"us"}}))
}
