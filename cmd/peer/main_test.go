package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zidane-Khaled/RetroVerse/internal/config"
	"github.com/Zidane-Khaled/RetroVerse/internal/input"
)

func TestRelayURL(t *testing.T) {
	u, err := relayURL(config.Peer{RelayURL: "ws://relay.local:8080/ws", SessionCode: "ABC123"})
	require.NoError(t, err)
	assert.Equal(t, "ws://relay.local:8080/ws?code=ABC123", u)

	u, err = relayURL(config.Peer{RelayURL: "ws://relay.local:8080/ws"})
	require.NoError(t, err)
	assert.Equal(t, "ws://relay.local:8080/ws", u)
}

func TestScript(t *testing.T) {
	idle, err := script("idle")
	require.NoError(t, err)
	assert.Equal(t, input.State{}, idle.Poll())

	w, err := script("wander")
	require.NoError(t, err)
	assert.Equal(t, input.State{Right: true, A: true}, w.Poll())
	assert.Equal(t, input.State{Right: true}, w.Poll())

	_, err = script("dance")
	assert.Error(t, err)
}
