package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vidsync/pkg/contracts/events"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum frame or poll body size accepted from the server
	maxMessageSize = 1 << 20
)

// Transport names the mechanism currently carrying updates
type Transport string

const (
	TransportDuplex  Transport = "duplex"
	TransportPolling Transport = "polling"
)

// channel is the capability both transports expose to the manager
type channel interface {
	Kind() Transport
	Subscribe(topic Topic) error
	Unsubscribe(topic Topic) error
	Close() error
}

// heartbeater is implemented by channels that keep intermediaries alive with pings
type heartbeater interface {
	Ping(at time.Time) error
}

// duplexTransport carries control messages and updates over one socket
type duplexTransport struct {
	conn Connection

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newDuplexTransport(conn Connection) *duplexTransport {
	conn.SetReadLimit(maxMessageSize)
	return &duplexTransport{conn: conn}
}

func (d *duplexTransport) Kind() Transport {
	return TransportDuplex
}

// Subscribe sends {type:"subscribe", topic, ...params}
func (d *duplexTransport) Subscribe(topic Topic) error {
	return d.send("subscribe", events.SubscribeMessage{Topic: topic.Name, Params: topic.Params})
}

// Unsubscribe sends {type:"unsubscribe", topic}
func (d *duplexTransport) Unsubscribe(topic Topic) error {
	return d.send("unsubscribe", events.NewUnsubscribe(topic.Name))
}

// Ping sends {type:"ping", timestamp}
func (d *duplexTransport) Ping(at time.Time) error {
	return d.send("ping", events.NewPing(at))
}

// Close closes the socket once; the read loop then exits
func (d *duplexTransport) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.conn.Close()
	})
	return d.closeErr
}

func (d *duplexTransport) send(op string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return protocolError(op, err)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	// socket deadlines are wall-clock regardless of the manager clock
	if err := d.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return transportError(op, err)
	}
	if err := d.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return transportError(op, err)
	}
	return nil
}

// readLoop delivers every inbound frame until the socket fails or closes
func (d *duplexTransport) readLoop(onFrame func([]byte), onClose func(error)) {
	for {
		_, data, err := d.conn.ReadMessage()
		if err != nil {
			onClose(err)
			return
		}
		onFrame(data)
	}
}
