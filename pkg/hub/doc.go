/*
Package hub fans messages out to a dynamic set of connections.

Each connection served by a Hub moves through Connecting, Open, Closing and
Closed. It is a member while Open. Every message received from a member is
delivered to all current members concurrently:

	h := hub.New(hub.WithPolicy(hub.ExcludeSender), hub.WithSendTimeout(5*time.Second))
	defer h.Close()

	http.Handle("/ws", hub.Handler(h))

Delivery is best effort per recipient. A send that fails or times out
disconnects that recipient only; the sender and the other recipients never
see the failure. Deliveries to one recipient keep the order in which a
sender's messages were received.

Whether the sender receives its own message is a policy choice. The default,
IncludeSender, echoes every message to everyone; ExcludeSender skips the
originating connection.

# Transports

Any Conn can be served. NewWebSocketConn, Handler and Dial adapt
gorilla/websocket connections.

# Scaling out

WithBackplane relays messages between hub instances. NewRedisBackplane uses
Redis pub/sub; messages published by an instance are ignored when they come
back to it, so local members are never delivered a message twice.
*/
package hub
