// Package connection 实现了MQTT客户端连接的写入和管理
package connection

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/packet"
)

var ErrConnectionClosed = errors.New("connection closed")

// Connection 表示一个客户端连接. It is also the MQTT sink of the client's
// bridge session, so every write goes through one mutex.
type Connection struct {
	conn     net.Conn
	connID   string
	clientID atomic.Value

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		conn:   conn,
		connID: conn.RemoteAddr().String(),
	}
}

func (c *Connection) ConnID() string {
	return c.connID
}

func (c *Connection) Conn() net.Conn {
	return c.conn
}

func (c *Connection) SetClientID(clientID string) {
	c.clientID.Store(clientID)
}

func (c *Connection) ClientID() string {
	if v, ok := c.clientID.Load().(string); ok {
		return v
	}
	return ""
}

// Send 发送数据到客户端
func (c *Connection) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	total := 0
	for total < len(data) {
		n, err := c.conn.Write(data[total:])
		if err != nil {
			logger.ErrorF("[%s] Fail to send data, details: %v", c.connID, err)
			return err
		}
		total += n
	}
	logger.DebugF("[%s] Send %d bytes to client", c.connID, total)
	return nil
}

func (c *Connection) IsOpen() bool {
	return !c.closed.Load()
}

func (c *Connection) PublishAtMostOnce(topic string, payload []byte) error {
	return c.Send(packet.NewPublishPacket(&packet.PublishPacketPayloads{
		TopicName: packet.NewFieldPayload(topic),
		Payload:   payload,
	}))
}

// Close closes the underlying network connection once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if err := c.conn.Close(); err != nil && !IsNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", c.connID, err)
		}
	})
}

func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func HandleReadError(connID string, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%s] Client close connection", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	case errors.Is(err, net.ErrClosed):
		logger.DebugF("[%s] Connection closed by bridge", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading packet, details: %v", connID, err)
	}
}
