package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/mqtt"
)

type UnSubscribePacketPayloads struct {
	PacketID int
	Topics   []string
}

func NewUnSubAckPacket(packetId int) []byte {
	return mqtt.EncodePacket(mqtt.UNSUBACK, 0, mqtt.UInt16ToByte(uint16(packetId)))
}

func ParseUnSubscribePacket(packet *mqtt.Packet) (*UnSubscribePacketPayloads, error) {
	result := &UnSubscribePacketPayloads{
		PacketID: -1,
		Topics:   make([]string, 0),
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
		result.Topics = append(result.Topics, topicFilter.String())
	}

	if len(result.Topics) == 0 {
		return result, errors.New("UNSUBSCRIBE packet contains no topic filter")
	}
	return result, nil
}

func NewUnSubscribePacket(packetID int, topics ...string) []byte {
	body := mqtt.UInt16ToByte(uint16(packetID))
	for _, topic := range topics {
		body = append(body, encodeField(NewFieldPayload(topic))...)
	}
	return mqtt.EncodePacket(mqtt.UNSUBSCRIBE, 0x02, body)
}
