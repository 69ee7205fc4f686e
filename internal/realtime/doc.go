// Package realtime keeps a live channel to the status server.
//
// A Manager prefers a duplex websocket. When the handshake has not
// succeeded within the grace period it polls one HTTP endpoint per topic
// and delivers the bodies as the same update envelopes the socket would.
// Reconnects use exponential backoff with jitter and never give up;
// subscriptions are replayed after every successful connect.
//
//	m, err := realtime.New(realtime.DefaultConfig("wss://studio.example.com/ws"))
//	if err != nil {
//		return err
//	}
//	m.OnMessage("workers", func(msg events.Envelope) { ... })
//	m.Subscribe(realtime.Topic{Name: "workers"})
//	m.Connect()
//	defer m.Disconnect()
package realtime
