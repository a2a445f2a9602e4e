package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepeccz/msi-a-sub001/internal/models"
)

func TestService_PersistsStateAcrossTurns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := NewService(h.store, h.gate)

	res, err := svc.HandleInbound(ctx, inbound("42", "hola"))
	require.NoError(t, err)
	assert.False(t, res.HandOff)
	assert.True(t, res.Outcome.IsFirstInteraction)

	res, err = svc.HandleInbound(ctx, inbound("42", "quiero homologar"))
	require.NoError(t, err)
	assert.False(t, res.Outcome.IsFirstInteraction)

	state, err := h.store.GetConversationState(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Len(t, state.Messages, 2)
	assert.Equal(t, 2, state.TotalMessageCount)
}

func TestService_DuplicateDeliveryIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := NewService(h.store, h.gate)
	msg := inbound("42", "hola")

	_, err := svc.HandleInbound(ctx, msg)
	require.NoError(t, err)
	res, err := svc.HandleInbound(ctx, msg)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Nil(t, res.Outcome)

	hist, err := h.store.GetConversationHistory(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, hist.MessageCount)
}

func TestService_BlockedTurnDoesNotSaveState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.handOff(42)
	svc := NewService(h.store, h.gate)

	res, err := svc.HandleInbound(ctx, inbound("42", "hola"))
	require.NoError(t, err)
	assert.True(t, res.HandOff)
	assert.Equal(t, DecisionBlockedEscalated, res.Outcome.Decision)

	state, err := h.store.GetConversationState(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestService_KillSwitchThenRecovery(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := NewService(h.store, h.gate)

	h.setKillSwitch(t, true)
	res, err := svc.HandleInbound(ctx, inbound("42", "hola"))
	require.NoError(t, err)
	assert.True(t, res.HandOff)
	assert.Equal(t, DecisionAgentDisabledAutoReply, res.Outcome.Decision)

	// The escalation handed the conversation to a human, so it stays blocked after the switch is released.
	h.setKillSwitch(t, false)
	res, err = svc.HandleInbound(ctx, inbound("42", "¿sigue ahí?"))
	require.NoError(t, err)
	assert.Equal(t, DecisionBlockedEscalated, res.Outcome.Decision)

	// A different conversation is served normally.
	res, err = svc.HandleInbound(ctx, inbound("43", "hola"))
	require.NoError(t, err)
	assert.Equal(t, DecisionIngested, res.Outcome.Decision)
}

func TestService_RequiresConversationID(t *testing.T) {
	h := newHarness(t)
	_, err := NewService(h.store, h.gate).HandleInbound(context.Background(), models.InboundMessage{ID: "x"})
	assert.ErrorIs(t, err, models.ErrEmptyConversationID)
}
