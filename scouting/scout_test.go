package scouting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/wire"
)

func testBackend(t *testing.T) *logext.Backend {
	b, err := logext.New(nil, "CRITICAL", true)
	require.NoError(t, err)
	return b
}

func TestScoutCollectsHelloFromResponder(t *testing.T) {
	backend := testBackend(t)
	cfg := Config{
		MulticastAddress: "224.0.1.199:17446", // scoped to this test, avoids colliding with a real scouting group
		Timeout:          500 * time.Millisecond,
		What:             wire.WhatAmIClient,
		ZID:              []byte{0x01},
	}

	responder, err := NewResponder(cfg, backend, func() []string {
		return []string{"tcp/127.0.0.1:7447"}
	})
	require.NoError(t, err)
	defer responder.Close()

	var hellos []Hello
	err = Scout(cfg, backend, func(h Hello) {
		hellos = append(hellos, h)
	})
	require.NoError(t, err)
	require.NotEmpty(t, hellos, "expected at least one HELLO from the responder")
	require.Equal(t, []string{"tcp/127.0.0.1:7447"}, hellos[0].Locators)
}

func TestScoutTimesOutWithNoResponder(t *testing.T) {
	cfg := Config{
		MulticastAddress: "224.0.1.200:17447",
		Timeout:          50 * time.Millisecond,
		What:             wire.WhatAmIClient,
	}
	var hellos []Hello
	err := Scout(cfg, testBackend(t), func(h Hello) { hellos = append(hellos, h) })
	require.NoError(t, err)
	require.Empty(t, hellos)
}

func TestScoutRejectsNonPositiveTimeout(t *testing.T) {
	err := Scout(Config{MulticastAddress: "224.0.1.201:17448"}, testBackend(t), func(Hello) {})
	require.Error(t, err)
}
