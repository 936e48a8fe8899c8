package connection

import (
	"sync"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/logger"
)

// ConnectionManager 连接管理器, keyed by MQTT client id
type ConnectionManager struct {
	connections sync.Map
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{}
}

// AddConnection registers conn for clientID and closes a connection that
// previously held the same client id.
func (cm *ConnectionManager) AddConnection(clientID string, conn *Connection) {
	previous, loaded := cm.connections.Swap(clientID, conn)
	logger.InfoF("Client %s connected from %s", clientID, conn.ConnID())
	if loaded {
		old := previous.(*Connection)
		if old != conn {
			logger.WarnF("[%s] Client %s connected again from %s, closing previous connection", old.ConnID(), clientID, conn.ConnID())
			old.Close()
		}
	}
}

// RemoveConnection removes conn unless another connection has taken over
// clientID. It reports whether conn was still the active one.
func (cm *ConnectionManager) RemoveConnection(clientID string, conn *Connection) bool {
	if cm.connections.CompareAndDelete(clientID, conn) {
		logger.InfoF("Client %s disconnected", clientID)
		return true
	}
	return false
}

func (cm *ConnectionManager) GetConnection(clientID string) (*Connection, bool) {
	if value, ok := cm.connections.Load(clientID); ok {
		return value.(*Connection), true
	}
	return nil, false
}

func (cm *ConnectionManager) Count() int {
	count := 0
	cm.connections.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// CloseAll closes every registered connection.
func (cm *ConnectionManager) CloseAll() {
	cm.connections.Range(func(_, value any) bool {
		value.(*Connection).Close()
		return true
	})
}
