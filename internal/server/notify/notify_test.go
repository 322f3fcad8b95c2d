package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotify_SendsToAllRecipients(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	orig := sendMail
	sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}
	defer func() { sendMail = orig }()

	n := NewSMTPNotifier("localhost:25", "civisync@localhost", "ops@example.com, finance@example.com")
	err := n.Notify(context.Background(), "sync failures", "3 payments failed")

	require.NoError(t, err)
	assert.Equal(t, "localhost:25", gotAddr)
	assert.Equal(t, "civisync@localhost", gotFrom)
	assert.Equal(t, []string{"ops@example.com", "finance@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: sync failures")
	assert.Contains(t, string(gotMsg), "3 payments failed")
}

func TestNotify_NoRecipientsIsNoop(t *testing.T) {
	called := false
	orig := sendMail
	sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		called = true
		return nil
	}
	defer func() { sendMail = orig }()

	n := NewSMTPNotifier("localhost:25", "civisync@localhost", "")
	err := n.Notify(context.Background(), "subject", "body")

	require.NoError(t, err)
	assert.False(t, called)
}

func TestNotify_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	orig := sendMail
	sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		<-release
		return nil
	}
	defer func() {
		sendMail = orig
		close(release)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewSMTPNotifier("localhost:25", "civisync@localhost", "ops@example.com")
	err := n.Notify(ctx, "subject", "body")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "smtp error")
}

func TestNotify_WrapsSendError(t *testing.T) {
	orig := sendMail
	sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("relay refused")
	}
	defer func() { sendMail = orig }()

	n := NewSMTPNotifier("localhost:25", "civisync@localhost", "ops@example.com")
	err := n.Notify(context.Background(), "subject", "body")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp error")
}
