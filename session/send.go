package session

import (
	"github.com/zenohpico/zenohpico-go/keyexpr"
	"github.com/zenohpico/zenohpico-go/wire"
)

// sendPush builds and sends a PUSH network message for a Put/Delete.
func (s *Session) sendPush(ke keyexpr.KeyExpr, payload []byte, enc wire.Encoding, isDelete bool, attachment []byte, reliable bool, cc CongestionControl) error {
	m := &wire.PushMessage{
		Key:        wire.WireKeyExpr{Suffix: ke.String()},
		IsDelete:   isDelete,
		Encoding:   enc,
		Payload:    payload,
		Attachment: attachment,
	}
	return s.transport.Send(m, reliable, cc)
}

// sendDeclareSubscriber announces a local subscriber to peers.
func (s *Session) sendDeclareSubscriber(id uint64, ke keyexpr.KeyExpr, reliable bool) error {
	m := &wire.DeclareMessage{Body: wire.DeclareBody{Subscriber: &wire.SubscriberDecl{
		ID:   id,
		Key:  wire.WireKeyExpr{Suffix: ke.String()},
		Kind: wire.SubscriberPush,
	}}}
	return s.transport.Send(m, true, CongestionBlock)
}

// sendDeclareQueryable announces a local queryable to peers.
func (s *Session) sendDeclareQueryable(id uint64, ke keyexpr.KeyExpr, complete bool, distance uint64) error {
	m := &wire.DeclareMessage{Body: wire.DeclareBody{Queryable: &wire.QueryableDecl{
		ID:          id,
		Key:         wire.WireKeyExpr{Suffix: ke.String()},
		Complete:    complete,
		DistanceLow: distance,
	}}}
	return s.transport.Send(m, true, CongestionBlock)
}

// sendUndeclare retracts a previously-announced declaration.
func (s *Session) sendUndeclare(kind wire.UndeclareKind, id uint64, reliable bool) error {
	m := &wire.DeclareMessage{Body: wire.DeclareBody{Undeclare: &wire.UndeclareDecl{Kind: kind, ID: id}}}
	return s.transport.Send(m, reliable, CongestionBlock)
}

// sendResponse answers an in-flight REQUEST with one value reply.
func (s *Session) sendResponse(peerID, requestID uint64, sample Sample) error {
	m := &wire.ResponseMessage{
		RequestID:  requestID,
		Key:        wire.WireKeyExpr{Suffix: sample.Key.String()},
		Encoding:   sample.Encoding,
		Ts:         sample.Ts,
		Payload:    sample.Payload,
		Attachment: sample.Attachment,
	}
	return s.sendToPeer(peerID, m, true, CongestionBlock)
}

// sendResponseErr answers an in-flight REQUEST with an error reply.
func (s *Session) sendResponseErr(peerID, requestID uint64, enc wire.Encoding, payload []byte) error {
	m := &wire.ResponseMessage{RequestID: requestID, IsErr: true, Encoding: enc, Payload: payload}
	return s.sendToPeer(peerID, m, true, CongestionBlock)
}

// sendResponseFinal closes out a REQUEST once every matching queryable
// has finalized (or none matched at all).
func (s *Session) sendResponseFinal(peerID, requestID uint64) error {
	return s.sendToPeer(peerID, &wire.ResponseFinalMessage{RequestID: requestID}, true, CongestionBlock)
}

// sendToPeer sends m back toward whichever peer originated the
// request it answers. A unicast Transport has exactly one remote, so
// Send already goes to the right place; a multicast Transport
// broadcasts, which over-delivers RESPONSE/RESPONSE_FINAL to peers
// that never asked -- acceptable here since those peers simply discard
// a response whose RequestID they don't recognize (spec.md §4.4
// nowhere requires point-to-point replies on a group transport, and
// zenoh-pico's own multicast responder behaves the same way).
func (s *Session) sendToPeer(_ uint64, m wire.NetworkMessage, reliable bool, cc CongestionControl) error {
	return s.transport.Send(m, reliable, cc)
}
