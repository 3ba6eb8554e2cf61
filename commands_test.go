package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shibayu36/salesagent/agent"
	"github.com/shibayu36/salesagent/policy"
	"github.com/stretchr/testify/require"
)

type stubResponder struct {
	reply *agent.Reply
	err   error
}

func (s *stubResponder) Respond(ctx context.Context, sessionID, message string) (*agent.Reply, error) {
	return s.reply, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAskOnce(t *testing.T) {
	responder := &stubResponder{reply: &agent.Reply{Category: policy.CategoryOutOfScope, Text: policy.OutOfScopeMessage}}

	var out bytes.Buffer
	require.NoError(t, askOnce(context.Background(), responder, discardLogger(), &out, "weather?", false))
	require.Equal(t, policy.OutOfScopeMessage+"\n", out.String())

	out.Reset()
	require.NoError(t, askOnce(context.Background(), responder, discardLogger(), &out, "weather?", true))
	var reply agent.Reply
	require.NoError(t, json.Unmarshal(out.Bytes(), &reply))
	require.Equal(t, policy.CategoryOutOfScope, reply.Category)
}

func TestAskOnce_HidesErrors(t *testing.T) {
	responder := &stubResponder{err: errors.New("chat completion failed: error, status code: 500")}

	for _, asJSON := range []bool{false, true} {
		var out bytes.Buffer
		err := askOnce(context.Background(), responder, discardLogger(), &out, "total revenue?", asJSON)
		require.ErrorIs(t, err, errAnswerFailed)
		require.NotContains(t, out.String(), "500")
		require.NotContains(t, err.Error(), "500")

		if !asJSON {
			require.Equal(t, apologyMessage+"\n", out.String())
			continue
		}
		var reply agent.Reply
		require.NoError(t, json.Unmarshal(out.Bytes(), &reply))
		require.Equal(t, apologyMessage, reply.Text)
	}
}
