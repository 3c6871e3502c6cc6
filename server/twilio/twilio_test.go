package twilio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/villagevault/villagevault/shared"
)

func TestE164(t *testing.T) {
	assert.Equal(t, "+917286973788", E164("7286973788"))
	assert.Equal(t, "+916305994096", E164(" 63059 94096 "))
	assert.Equal(t, "+14165550100", E164("+14165550100"))
}

func TestLogOnlyMode(t *testing.T) {
	client := NewClient(shared.TwilioConfig{})
	assert.True(t, client.LogOnly())

	assert.NoError(t, client.SendMessage(context.Background(), "9849119427", "hello"))
	assert.NoError(t, client.MakeCall(context.Background(), "9849119427", "hello"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, client.SendMessage(ctx, "9849119427", "hello"), context.Canceled)
}
