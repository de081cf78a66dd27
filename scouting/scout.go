// Package scouting implements spec.md §4.8's optional discovery step:
// on session open with mode=client and no configured peer list, open a
// short-lived UDP socket, emit SCOUT, and collect HELLO replies into a
// locator list bounded by a timeout. Grounded on the teacher's
// listener.go accept-loop idiom (worker goroutine, WaitGroup-joined
// halt), adapted here from an unbounded accept loop into one bounded
// by a deadline instead of an explicit stop signal, since a scout pass
// naturally terminates.
package scouting

import (
	"net"
	"time"

	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/iobuf"
	"github.com/zenohpico/zenohpico-go/wire"
	"github.com/zenohpico/zenohpico-go/zerr"
)

const maxDatagramSize = 2048

// Config holds the parameters of a scouting pass, taken from spec.md §6's
// configuration keys.
type Config struct {
	MulticastAddress   string // "224.0.0.224:7446" by default
	MulticastInterface string // "" lets the OS choose
	Timeout            time.Duration
	What               wire.WhatAmI
	ZID                []byte
}

// Hello is one collected response, tagging the advertised locators
// with the sender's address and identity.
type Hello struct {
	From     net.Addr
	What     wire.WhatAmI
	ZID      []byte
	Locators []string
}

// Scout emits one SCOUT message to cfg.MulticastAddress and invokes
// onHello for each HELLO received within cfg.Timeout. It returns once
// the timeout elapses; a zero or negative Timeout is rejected.
func Scout(cfg Config, backend *logext.Backend, onHello func(Hello)) error {
	if cfg.Timeout <= 0 {
		return zerr.New(zerr.KindInvalidArgument, "scouting: timeout must be positive")
	}
	log := backend.GetLogger("scouting")

	groupAddr, err := net.ResolveUDPAddr("udp4", cfg.MulticastAddress)
	if err != nil {
		return err
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return err
	}
	defer conn.Close()

	w := iobuf.NewWBuf(64, true)
	if err := wire.EncodeScout(w, &wire.ScoutMessage{What: cfg.What, ZID: cfg.ZID}); err != nil {
		return err
	}
	if _, err := conn.WriteTo(w.ToRBuf().Bytes(), groupAddr); err != nil {
		return err
	}
	log.Debugf("scouting: sent SCOUT to %s", cfg.MulticastAddress)

	deadline := time.Now().Add(cfg.Timeout)
	buf := make([]byte, maxDatagramSize)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if err := conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return err
		}
		n, src, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil
			}
			return err
		}
		hello, err := wire.DecodeHello(iobuf.NewRBuf(buf[:n]))
		if err != nil {
			log.Warningf("scouting: dropping malformed datagram from %v: %v", src, err)
			continue
		}
		onHello(Hello{From: src, What: hello.What, ZID: hello.ZID, Locators: hello.Locators})
	}
}
