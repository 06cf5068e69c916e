// Package connection composes the per-peer managers into the connection
// lifecycle (spec §4.10), grounded on
// original_source/client/src/server_connection.rs's ServerConnection, which
// owns exactly this set of managers (ping, tick, ack/header, jitter buffer)
// behind one per-peer struct.
package connection

// HandshakeState is the client-initiated handshake state machine (spec
// §4.10):
//
//	CLIENT_HELLO(auth?) -> SERVER_CHALLENGE(nonce) -> CLIENT_CHALLENGE(reply) -> SERVER_ACCEPT|REJECT
type HandshakeState uint8

const (
	HandshakeAwaitingChallenge HandshakeState = iota // client sent HELLO, awaiting CHALLENGE
	HandshakeAwaitingAccept                          // client sent CHALLENGE reply, awaiting ACCEPT/REJECT
	HandshakeConnected
	HandshakeRejected
)

// ServerHandshakeState is the server's mirrored view per pending client.
type ServerHandshakeState uint8

const (
	ServerAwaitingChallengeReply ServerHandshakeState = iota // sent CHALLENGE, awaiting reply
	ServerAccepted
)
