package zenoh

import (
	"github.com/zenohpico/zenohpico-go/config"
	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/scouting"
	"github.com/zenohpico/zenohpico-go/wire"
	"github.com/zenohpico/zenohpico-go/zerr"
)

// Scout runs spec.md §4.8's discovery step: on a client-mode cfg with
// no configured peers, emit SCOUT and feed every collected HELLO to
// onHello until cfg's scouting/timeout elapses. Callers typically use
// the reported Hello.Locators to pick a connect/endpoint before
// calling Open.
func Scout(cfg *config.Config, backend *logext.Backend, onHello func(scouting.Hello)) error {
	timeout, ok := cfg.ScoutingTimeout()
	if !ok {
		return zerr.New(zerr.KindInvalidArgument, "zenoh: scouting/timeout must be set to scout")
	}
	zid, err := newZID()
	if err != nil {
		return err
	}
	sc := scouting.Config{
		MulticastAddress:   cfg.ScoutingMulticastAddress(),
		MulticastInterface: cfg.ScoutingMulticastInterface(),
		Timeout:            timeout,
		What:               wire.WhatAmIClient,
		ZID:                zid,
	}
	return scouting.Scout(sc, backend, onHello)
}
