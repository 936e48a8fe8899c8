package bridge

import (
	"fmt"
	"sync/atomic"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/logger"
)

// Sink is the MQTT side of one connected client.
type Sink interface {
	IsOpen() bool
	PublishAtMostOnce(topic string, payload []byte) error
	Close()
}

type DeliveryState int32

const (
	DeliveryRunning DeliveryState = iota
	DeliveryClosedSinkFailed
	DeliveryClosedSinkClosed
	DeliveryClosedChannelClosed
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryRunning:
		return "running"
	case DeliveryClosedSinkFailed:
		return "closed (sink failed)"
	case DeliveryClosedSinkClosed:
		return "closed (sink closed)"
	case DeliveryClosedChannelClosed:
		return "closed (channel closed)"
	default:
		return fmt.Sprintf("DeliveryState(%d)", int32(s))
	}
}

type outboundMessage struct {
	topic   string
	payload []byte
}

// outbound is the single-slot queue between overlay callbacks and the
// delivery goroutine of one session.
type outbound struct {
	ch chan outboundMessage
	// closed 在会话销毁时关闭
	closed chan struct{}
	// stopped 在投递协程退出时关闭
	stopped chan struct{}
	state   atomic.Int32
}

func newOutbound() *outbound {
	return &outbound{
		ch:      make(chan outboundMessage, 1),
		closed:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// send blocks while the slot is occupied.
func (o *outbound) send(msg outboundMessage) error {
	select {
	case <-o.closed:
		return ErrChannelClosed
	case <-o.stopped:
		return ErrChannelClosed
	default:
	}
	select {
	case o.ch <- msg:
		return nil
	case <-o.closed:
		return ErrChannelClosed
	case <-o.stopped:
		return ErrChannelClosed
	}
}

func (o *outbound) isClosed() bool {
	select {
	case <-o.closed:
		return true
	default:
		return false
	}
}

func (o *outbound) recv() (outboundMessage, bool) {
	select {
	case msg := <-o.ch:
		// 会话已销毁时不再投递
		if o.isClosed() {
			return outboundMessage{}, false
		}
		return msg, true
	case <-o.closed:
		return outboundMessage{}, false
	}
}

func (o *outbound) finish(state DeliveryState) {
	o.state.Store(int32(state))
	close(o.stopped)
}

func spawnMQTTPublisher(clientID string, queue *outbound, sink Sink) {
	go func() {
		for {
			msg, ok := queue.recv()
			if !ok {
				logger.TraceF("[%s] Outbound channel closed", clientID)
				queue.finish(DeliveryClosedChannelClosed)
				return
			}
			if !sink.IsOpen() {
				logger.TraceF("[%s] MQTT sink closed", clientID)
				queue.finish(DeliveryClosedSinkClosed)
				return
			}
			if err := sink.PublishAtMostOnce(msg.topic, msg.payload); err != nil {
				logger.TraceF("%v", &DeliveryError{ClientID: clientID, Topic: msg.topic, Err: err})
				sink.Close()
				queue.finish(DeliveryClosedSinkFailed)
				return
			}
		}
	}()
}
