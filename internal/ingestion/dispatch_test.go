package ingestion_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PerpClearing/internal/event"
	"PerpClearing/internal/ingestion"
	"PerpClearing/internal/testutil"
)

type recordingDispatcher struct {
	commands []event.Command
	payloads [][]byte
	err      error
}

func (d *recordingDispatcher) Process(cmd event.Command, payload []byte) (*event.Envelope, error) {
	d.commands = append(d.commands, cmd)
	d.payloads = append(d.payloads, payload)
	if d.err != nil {
		return nil, d.err
	}
	return &event.Envelope{Sequence: int64(len(d.commands)), Operation: cmd.Operation()}, nil
}

type acks struct {
	acked, naked, termed int
}

func (a *acks) raw(subject string, data []byte) ingestion.RawCommand {
	return ingestion.RawCommand{
		Subject:  subject,
		Data:     data,
		AckFunc:  func() { a.acked++ },
		NakFunc:  func() { a.naked++ },
		TermFunc: func() { a.termed++ },
	}
}

func depositPayload(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(&event.DepositCollateral{
		Header: testutil.Header(testutil.Alice, testutil.T0),
		Amount: 1_000_000,
	})
	require.NoError(t, err)
	return data
}

func runLoop(d ingestion.Dispatcher, raws ...ingestion.RawCommand) {
	ch := make(chan ingestion.RawCommand, len(raws))
	for _, r := range raws {
		ch <- r
	}
	close(ch)
	ingestion.RunDispatchLoop(context.Background(), ch, d, zerolog.Nop())
}

func TestDispatchLoop(t *testing.T) {
	d := &recordingDispatcher{}
	a := &acks{}
	payload := depositPayload(t)

	runLoop(d,
		a.raw(ingestion.CommandSubject(event.OpDepositCollateral), payload),
		a.raw("clearinghouse.cmd.mint_tokens", payload),
		a.raw(ingestion.CommandSubject(event.OpDepositCollateral), []byte(`{"amount":`)),
	)

	require.Len(t, d.commands, 1)
	assert.Equal(t, event.OpDepositCollateral, d.commands[0].Operation())
	assert.Equal(t, payload, d.payloads[0])
	assert.Equal(t, 1, a.acked)
	assert.Equal(t, 2, a.termed)
	assert.Zero(t, a.naked)
}

func TestDispatchLoop_AcksRejectedCommands(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("insufficient collateral")}
	a := &acks{}

	runLoop(d, a.raw(ingestion.CommandSubject(event.OpDepositCollateral), depositPayload(t)))

	assert.Len(t, d.commands, 1)
	assert.Equal(t, 1, a.acked)
}

func TestDispatchLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		ingestion.RunDispatchLoop(ctx, make(chan ingestion.RawCommand), &recordingDispatcher{}, zerolog.Nop())
		close(done)
	}()
	<-done
}

func TestDispatchLoop_ThroughProcessor(t *testing.T) {
	p := testutil.NewProcessor(t)
	a := &acks{}

	var raws []ingestion.RawCommand
	for _, cmd := range testutil.BootstrapCommands(testutil.Alice) {
		data, err := json.Marshal(cmd)
		require.NoError(t, err)
		raws = append(raws, a.raw(ingestion.CommandSubject(cmd.Operation()), data))
	}
	deposit := a.raw(ingestion.CommandSubject(event.OpDepositCollateral), depositPayload(t))
	// A redelivered command is applied once.
	raws = append(raws, deposit, deposit)

	runLoop(p, raws...)

	assert.Equal(t, len(raws), a.acked)
	assert.Equal(t, int64(len(raws)-1), p.LastSequence())
}
