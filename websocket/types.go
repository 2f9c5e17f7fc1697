package websocket

import "time"

// Connection tuning shared by the client pumps
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Observers only receive; anything they send is discarded
	maxMessageSize = 512

	// Events buffered per client before it is considered too slow
	clientSendBuffer = 256

	// Events buffered between publishers and the hub loop
	broadcastBuffer = 256
)
