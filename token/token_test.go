package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/opcua-go/uasc/ua"
)

func TestTokenDeadlines(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := &Token{
		ID:              1,
		ChannelID:       ua.NewChannelID(),
		CreatedAt:       created,
		RevisedLifetime: 1000 * time.Millisecond,
	}

	assert.Equal(t, created.Add(1000*time.Millisecond), tok.ExpiresAt())
	assert.Equal(t, created.Add(1250*time.Millisecond), tok.ReceiveGraceDeadline())
	assert.Equal(t, created.Add(750*time.Millisecond), tok.RenewalDueAt())
}
