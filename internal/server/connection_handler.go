package server

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/bridge"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/connection"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/database"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/keyexpr"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/mqtt"
	pa "github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/packet"
)

type ConnectionHandler struct {
	server    *Server
	conn      *connection.Connection
	connId    string
	clientID  string
	keepAlive time.Duration
	session   *bridge.Session
	record    *database.SessionRecord
}

func newConnectionHandler(server *Server, conn *connection.Connection) *ConnectionHandler {
	return &ConnectionHandler{
		server: server,
		conn:   conn,
		connId: conn.ConnID(),
	}
}

func (c *ConnectionHandler) readPacket() (*mqtt.Packet, error) {
	return mqtt.ReadPacket(c.conn.Conn(), c.server.maxPacketSize)
}

func (c *ConnectionHandler) handleFirstPacket() error {
	_ = c.conn.Conn().SetReadDeadline(time.Now().Add(connectTimeout))
	packet, err := c.readPacket()
	if err != nil {
		logger.WarnF("[%s] Fail to read first packet, details: %v", c.connId, err)
		return err
	}

	if packet.Header.Type != mqtt.CONNECT {
		logger.ErrorF("[%s] Invalid first packet type, expected %s packet, but got %s packet", c.connId, mqtt.CONNECT.String(), packet.Header.Type.String())
		return errors.New("first packet is not CONNECT")
	}

	clientInfo, resp, err := pa.ParseConnectPacket(packet)
	if resp != nil {
		if err := c.conn.Send(resp); err != nil {
			return err
		}
	}
	if err != nil {
		logger.ErrorF("[%s] Fail to parse CONNECT packet, details: %v", c.connId, err)
		return err
	}

	c.clientID = clientInfo.ClientID()
	if c.clientID == "" {
		c.clientID = uuid.NewString()
		logger.DebugF("[%s] Empty client id, assigned %s", c.connId, c.clientID)
	}
	c.conn.SetClientID(c.clientID)

	c.server.connections.AddConnection(c.clientID, c.conn)
	c.session = bridge.NewSession(c.clientID, c.server.overlay, c.server.bridgeConfig, c.conn)
	c.record = database.NewSessionRecord(c.clientID, c.server.overlay.ID(), c.connId)
	c.saveRecord()

	if err := c.conn.Send(pa.NewConnectAckPacket(false, pa.Accepted)); err != nil {
		return err
	}

	c.keepAlive = time.Duration(clientInfo.KeepAlive) * time.Second
	if c.keepAlive == 0 {
		logger.WarnF("[%s] Keep alive set to 0, heartbeat disable", c.clientID)
	}
	_ = c.conn.Conn().SetReadDeadline(time.Time{})
	return nil
}

func (c *ConnectionHandler) saveRecord() {
	c.record.Subscriptions = make(map[string]string)
	for topic, locality := range c.session.Subscriptions() {
		c.record.Subscriptions[topic] = locality.String()
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.server.store.SaveSession(ctx, c.record); err != nil {
		logger.WarnF("[%s] Fail to save session record, details: %v", c.clientID, err)
	}
}

func (c *ConnectionHandler) handlePublish(ctx context.Context, packet *mqtt.Packet) error {
	result, err := pa.ParsePublishPacket(packet)
	if err != nil {
		logger.ErrorF("[%s] Fail to handle publish packet, details: %v", c.clientID, err)
		return err
	}
	if result.PacketFlag.QoS > 1 {
		logger.ErrorF("[%s] QoS %d publish is not supported", c.clientID, result.PacketFlag.QoS)
		return errors.New("unsupported QoS")
	}
	if result.PacketFlag.Retain {
		logger.DebugF("[%s] Retain flag of publish on %s ignored", c.clientID, result.TopicName.String())
	}

	err = c.session.RouteMQTTToOverlay(ctx, result.TopicName.String(), result.Payload)
	if err != nil {
		var translationErr *keyexpr.TranslationError
		if errors.As(err, &translationErr) {
			logger.ErrorF("[%s] Invalid publish topic, details: %v", c.clientID, err)
			return err
		}
		logger.WarnF("[%s] Fail to route publish to overlay, details: %v", c.clientID, err)
	}

	if result.PacketFlag.QoS == 1 {
		return c.conn.Send(pa.NewPubAckPacket(result.PacketID))
	}
	return nil
}

func (c *ConnectionHandler) handleSubscribe(ctx context.Context, packet *mqtt.Packet) error {
	result, err := pa.ParseSubscribePacket(packet)
	if err != nil {
		logger.ErrorF("[%s] Fail to handle subscribe packet, details: %v", c.clientID, err)
		return err
	}

	states := make([]pa.SubscribeState, 0, len(result.Filters))
	for _, filter := range result.Filters {
		if err := c.session.MapMQTTSubscription(ctx, filter.Topic); err != nil {
			logger.WarnF("[%s] Fail to subscribe %s, details: %v", c.clientID, filter.Topic, err)
			states = append(states, pa.Failure)
			continue
		}
		states = append(states, pa.SuccessQos0)
	}
	c.saveRecord()

	if err := c.conn.Send(pa.NewSubAckPacket(result.PacketID, states)); err != nil {
		logger.ErrorF("[%s] Fail to send subscribe ack packet, details: %v", c.clientID, err)
		return err
	}
	return nil
}

// handleUnsubscribe acknowledges the request only. Subscriptions live as long
// as the bridge session.
func (c *ConnectionHandler) handleUnsubscribe(packet *mqtt.Packet) error {
	result, err := pa.ParseUnSubscribePacket(packet)
	if err != nil {
		logger.ErrorF("[%s] Fail to handle unsubscribe packet, details: %v", c.clientID, err)
		return err
	}
	logger.InfoF("[%s] Unsubscribe %v acknowledged, subscriptions are kept until disconnect", c.clientID, result.Topics)
	if err := c.conn.Send(pa.NewUnSubAckPacket(result.PacketID)); err != nil {
		logger.ErrorF("[%s] Fail to send unsubscribe ack packet, details: %v", c.clientID, err)
		return err
	}
	return nil
}

func (c *ConnectionHandler) handlePacket(ctx context.Context) {
	for {
		if c.keepAlive != 0 {
			_ = c.conn.Conn().SetReadDeadline(time.Now().Add(c.keepAlive + 10*time.Second))
		}

		packet, err := c.readPacket()
		if err != nil {
			connection.HandleReadError(c.clientID, err)
			return
		}

		logger.DebugF("[%s] Receive %s package, remaining length %d", c.clientID, packet.Header.Type, packet.Header.RemainingLength)

		switch packet.Header.Type {
		case mqtt.CONNECT:
			logger.ErrorF("[%s] Duplicate CONNECT package", c.clientID)
			return
		case mqtt.PUBLISH:
			err = c.handlePublish(ctx, packet)
		case mqtt.SUBSCRIBE:
			err = c.handleSubscribe(ctx, packet)
		case mqtt.UNSUBSCRIBE:
			err = c.handleUnsubscribe(packet)
		case mqtt.PINGREQ:
			if err := c.conn.Send(pa.NewPingRespPacket()); err != nil {
				logger.WarnF("[%s] Fail to send PINGRESP packet, details: %v", c.clientID, err)
			}
		case mqtt.DISCONNECT:
			logger.InfoF("[%s] Client disconnect", c.clientID)
			return
		default:
			logger.WarnF("[%s] %s package has not been supported", c.clientID, packet.Header.Type.String())
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *ConnectionHandler) close() {
	if c.session != nil {
		c.session.Close()
	}
	c.conn.Close()
	if c.clientID == "" {
		return
	}
	if c.server.connections.RemoveConnection(c.clientID, c.conn) {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := c.server.store.DeleteSession(ctx, c.clientID); err != nil && !errors.Is(err, database.ErrSessionNotFound) {
			logger.WarnF("[%s] Fail to delete session record, details: %v", c.clientID, err)
		}
	}
}

func (c *ConnectionHandler) handleConnection(ctx context.Context) {
	defer func() {
		c.close()
		logger.DebugF("[%s] Connection closed", c.connId)
	}()

	if err := c.handleFirstPacket(); err != nil {
		return
	}

	c.handlePacket(ctx)
}
