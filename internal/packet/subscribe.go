package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/mqtt"
)

type SubscribeState byte

const (
	SuccessQos0 SubscribeState = iota
	SuccessQos1
	SuccessQos2
	Failure SubscribeState = 0x80
)

type TopicFilter struct {
	Topic string
	QoS   byte
}

type SubscribePacketPayloads struct {
	PacketID int
	Filters  []TopicFilter
}

// NewSubAckPacket encodes one return code per requested topic filter.
func NewSubAckPacket(packetId int, states []SubscribeState) []byte {
	body := mqtt.UInt16ToByte(uint16(packetId))
	for _, state := range states {
		body = append(body, byte(state))
	}
	return mqtt.EncodePacket(mqtt.SUBACK, 0, body)
}

func ParseSubscribePacket(packet *mqtt.Packet) (*SubscribePacketPayloads, error) {
	result := &SubscribePacketPayloads{
		PacketID: -1,
		Filters:  make([]TopicFilter, 0),
	}

	packetId, err := readPacketBytes(packet.Payload, 2)
	if err != nil {
		return result, fmt.Errorf("error occured when reading packet ID, details: %v", err)
	}
	result.PacketID = int(binary.BigEndian.Uint16(packetId))

	for packet.Payload.CheckRemainingLength() {
		topicFilter, err := readPacketPayload(packet.Payload)
		if err != nil {
			return result, fmt.Errorf("error occured when reading topic filter, details: %v", err)
		}
		qos, err := readPacketByte(packet.Payload)
		if err != nil {
			return result, fmt.Errorf("error occured when reading qos level, details: %v", err)
		}
		if qos&0xFC != 0 {
			return result, fmt.Errorf("reserved bits of requested QoS must be 0, got %#x", qos)
		}
		result.Filters = append(result.Filters, TopicFilter{Topic: topicFilter.String(), QoS: qos & 0x03})
	}

	if len(result.Filters) == 0 {
		return result, errors.New("SUBSCRIBE packet contains no topic filter")
	}
	return result, nil
}

// NewSubscribePacket encodes a SUBSCRIBE packet requesting QoS 0 for every topic.
func NewSubscribePacket(packetID int, topics ...string) []byte {
	body := mqtt.UInt16ToByte(uint16(packetID))
	for _, topic := range topics {
		body = append(body, encodeField(NewFieldPayload(topic))...)
		body = append(body, 0x00)
	}
	return mqtt.EncodePacket(mqtt.SUBSCRIBE, 0x02, body)
}
