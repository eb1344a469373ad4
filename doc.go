// Package wsess is a client-side WebSocket session adapter. A Client owns
// the supporting infrastructure (scheduler pool, subscriber registry, id
// counter); each Session it creates owns one logical connection: the
// lifecycle state machine, the transport handle, and a single-flight
// outgoing message pipeline that turns bursts of Send calls into a strictly
// ordered, one-at-a-time transmission sequence. Inbound messages and close
// events are forwarded to the registered Subscriber, and every asynchronous
// outcome is reported as a uniform Result pairing a generic Status with the
// transport's own diagnostic code.
//
// Ownership boundary: wsess owns session state, the outgoing queue, and
// completion delivery. Network I/O belongs to Transport implementations
// (gorillaws, coderws); retry and timeout policy belong to callers, who
// compose them externally around Connect and Send.
package wsess
