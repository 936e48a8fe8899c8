package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/mqtt"
)

type PublishPacketFlag struct {
	RetryFlag bool
	QoS       byte
	Retain    bool
}

type PublishPacketPayloads struct {
	PacketFlag PublishPacketFlag
	TopicName  FieldPayload
	PacketID   int
	Payload    []byte
}

// NewPublishPacket encodes a PUBLISH packet. The bridge only sends QoS 0.
func NewPublishPacket(packetPayloads *PublishPacketPayloads) []byte {
	var flags byte
	if packetPayloads.PacketFlag.RetryFlag {
		flags |= 0x08
	}
	flags |= (packetPayloads.PacketFlag.QoS & 0x03) << 1
	if packetPayloads.PacketFlag.Retain {
		flags |= 0x01
	}

	body := encodeField(packetPayloads.TopicName)
	if packetPayloads.PacketFlag.QoS > 0 {
		body = append(body, mqtt.UInt16ToByte(uint16(packetPayloads.PacketID))...)
	}
	body = append(body, packetPayloads.Payload...)
	return mqtt.EncodePacket(mqtt.PUBLISH, flags, body)
}

func NewPubAckPacket(packetID int) []byte {
	return mqtt.EncodePacket(mqtt.PUBACK, 0, mqtt.UInt16ToByte(uint16(packetID)))
}

func ParsePublishPacket(packet *mqtt.Packet) (*PublishPacketPayloads, error) {
	result := &PublishPacketPayloads{
		PacketFlag: PublishPacketFlag{
			RetryFlag: (packet.Header.Flags&0x08)>>3 == 1,
			QoS:       (packet.Header.Flags & 0x06) >> 1,
			Retain:    packet.Header.Flags&0x01 == 1,
		},
	}

	if result.PacketFlag.QoS == 0 && result.PacketFlag.RetryFlag {
		return result, fmt.Errorf("when QoS Level set to 0, retry flag must be set to 0 either")
	}

	if result.PacketFlag.QoS == 3 {
		return result, fmt.Errorf("the QoS Level must not set to 3")
	}

	topicName, err := readPacketPayload(packet.Payload)
	if err != nil {
		return result, fmt.Errorf("error occured when reading topic name, details: %v", err)
	}
	result.TopicName = topicName

	if result.PacketFlag.QoS > 0 {
		packetId, err := readPacketBytes(packet.Payload, 2)
		if err != nil {
			return result, fmt.Errorf("error occured when reading packet ID, details: %v", err)
		}
		result.PacketID = int(binary.BigEndian.Uint16(packetId))
	}

	payload, err := readPacketBytes(packet.Payload, packet.Payload.ContextLen-packet.Payload.CurrentPtr)
	if err != nil {
		return result, fmt.Errorf("error occured when reading payload, details: %v", err)
	}
	result.Payload = payload

	return result, nil
}
