package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluator_ParsesResult(t *testing.T) {
	p := &fakeProvider{id: "a", text: `{"result": " Yes "}`}
	e := NewEvaluator(NewChain([]Provider{p}, nil))

	got, err := e.Evaluate(context.Background(), "Did the guest agree?", "ask: maybe", "sure thing")
	require.NoError(t, err)
	require.Equal(t, "yes", got)

	req := p.lastCall()
	require.True(t, req.JSONMode)
	require.Contains(t, req.System, "Did the guest agree?")
	require.Contains(t, req.System, "ask: maybe")
	require.Equal(t, "sure thing", req.Messages[0].Content)
}

func TestEvaluator_PlainTextResult(t *testing.T) {
	e := NewEvaluator(NewChain([]Provider{&fakeProvider{id: "a", text: "No."}}, nil))
	got, err := e.Evaluate(context.Background(), "p", "", "nope")
	require.NoError(t, err)
	require.Equal(t, "no", got)
}

func TestEvaluator_Unavailable(t *testing.T) {
	e := NewEvaluator(NewChain([]Provider{&fakeProvider{id: "a", err: errors.New("down")}}, nil))
	_, err := e.Evaluate(context.Background(), "p", "", "x")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestEvaluator_MalformedJSON(t *testing.T) {
	e := NewEvaluator(NewChain([]Provider{&fakeProvider{id: "a", text: `{"result": }`}}, nil))
	_, err := e.Evaluate(context.Background(), "p", "", "x")
	require.Error(t, err)
}
