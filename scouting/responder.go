package scouting

import (
	"fmt"
	"net"
	"sync"

	"github.com/op/go-logging"
	"golang.org/x/net/ipv4"

	"github.com/zenohpico/zenohpico-go/internal/logext"
	"github.com/zenohpico/zenohpico-go/iobuf"
	"github.com/zenohpico/zenohpico-go/wire"
)

// Responder joins the scouting multicast group and answers inbound
// SCOUT datagrams with HELLO, advertising this node's own identity and
// listen locators. Grounded on the teacher's listener.go worker/halt
// pair: a goroutine loops on reads until the socket is closed, and
// halt joins that goroutine before returning. Group membership itself
// goes through golang.org/x/net/ipv4 rather than net.ListenMulticastUDP
// so MulticastInterface selection and group join are explicit calls
// instead of net's all-or-nothing constructor, matching how the
// retrieval pack's own UDP/KCP session code drives multicast via x/net.
type Responder struct {
	pconn *ipv4.PacketConn
	log   *logging.Logger
	wg    sync.WaitGroup

	groupAddr *net.UDPAddr
	what      wire.WhatAmI
	zid       []byte
	locators  func() []string
}

// NewResponder starts listening on cfg.MulticastAddress. locators is
// called fresh on every SCOUT so a listener can report an up-to-date
// address list (e.g. after binding a dynamic port).
func NewResponder(cfg Config, backend *logext.Backend, locators func() []string) (*Responder, error) {
	groupAddr, err := net.ResolveUDPAddr("udp4", cfg.MulticastAddress)
	if err != nil {
		return nil, err
	}
	var iface *net.Interface
	if cfg.MulticastInterface != "" {
		iface, err = net.InterfaceByName(cfg.MulticastInterface)
		if err != nil {
			return nil, err
		}
	}
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", groupAddr.Port))
	if err != nil {
		return nil, err
	}
	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.JoinGroup(iface, groupAddr); err != nil {
		conn.Close()
		return nil, err
	}

	r := &Responder{
		pconn:     pconn,
		groupAddr: groupAddr,
		log:       backend.GetLogger("scouting"),
		what:      cfg.What,
		zid:       cfg.ZID,
		locators:  locators,
	}
	r.wg.Add(1)
	go r.worker()
	return r, nil
}

// Close stops the responder and joins its worker goroutine.
func (r *Responder) Close() {
	r.pconn.Close()
	r.wg.Wait()
}

func (r *Responder) worker() {
	defer r.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for {
		n, _, src, err := r.pconn.ReadFrom(buf)
		if err != nil {
			return
		}
		scout, err := wire.DecodeScout(iobuf.NewRBuf(buf[:n]))
		if err != nil {
			r.log.Warningf("scouting: dropping malformed scout from %v: %v", src, err)
			continue
		}
		_ = scout.What // every WhatAmI is answered; no role filtering in this core

		w := iobuf.NewWBuf(128, true)
		hello := &wire.HelloMessage{What: r.what, ZID: r.zid, Locators: r.locators()}
		if err := wire.EncodeHello(w, hello); err != nil {
			r.log.Errorf("scouting: encode hello: %v", err)
			continue
		}
		if _, err := r.pconn.WriteTo(w.ToRBuf().Bytes(), nil, src); err != nil {
			r.log.Warningf("scouting: reply to %v: %v", src, err)
		}
	}
}
