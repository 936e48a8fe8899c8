package mqtt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxRemainingLength is the largest value a 4 byte remaining length can hold.
const MaxRemainingLength = 268435455

var ErrPacketTooLarge = errors.New("packet exceeds the maximum allowed size")

func UInt16ToByte(number uint16) []byte {
	result := make([]byte, 2)
	binary.BigEndian.PutUint16(result, number)
	return result
}

func ByteToUInt16(bytes []byte) uint16 {
	if len(bytes) == 0 {
		return 0
	}
	if len(bytes) == 1 {
		return uint16(bytes[0])
	}
	return binary.BigEndian.Uint16(bytes)
}

func ReadByte(r io.Reader) (byte, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadPacket reads one control packet. maxSize bounds the remaining length,
// zero means no limit beyond the protocol maximum.
func ReadPacket(r io.Reader, maxSize int) (*Packet, error) {
	// 读取固定头
	typeAndFlags, err := ReadByte(r)
	if err != nil {
		return nil, err
	}

	remaining, err := DecodeRemainingLength(r)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && remaining > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, remaining, maxSize)
	}

	// 读取可变头+有效载荷
	payload := make([]byte, remaining)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	header := &FixedHeader{
		Type:            PacketType(typeAndFlags >> 4),
		Flags:           typeAndFlags & 0x0F,
		RemainingLength: remaining,
	}

	if _, ok := allowedFlags[header.Type]; !ok {
		return nil, fmt.Errorf("unknown packet type %d", byte(header.Type))
	}
	if !ValidateFlags(header.Type, header.Flags) {
		return nil, fmt.Errorf("flags %d of %s packet is not valid", header.Flags, header.Type.String())
	}

	return &Packet{
		Header: header,
		Payload: &Payload{
			Context:    payload,
			ContextLen: len(payload),
			CurrentPtr: 0,
		},
	}, nil
}

func DecodeRemainingLength(r io.Reader) (int, error) {
	multiplier := 1
	value := 0
	for i := 0; i < 4; i++ { // 最多读取4字节
		encodedByte, err := ReadByte(r)
		if err != nil {
			return 0, err
		}
		value += int(encodedByte&127) * multiplier
		multiplier *= 128
		if (encodedByte & 128) == 0 {
			return value, nil
		}
	}
	return 0, errors.New("the remaining length exceeds the 4 byte limit")
}

func EncodeRemainingLength(x int) []byte {
	if x == 0 {
		return []byte{0}
	}
	var buf [4]byte
	i := 0
	for x > 0 && i < 4 {
		buf[i] = byte(x % 128)
		if x /= 128; x > 0 {
			buf[i] |= 128
		}
		i++
	}
	return buf[:i]
}

// EncodePacket prepends the fixed header to body.
func EncodePacket(packetType PacketType, flags byte, body []byte) []byte {
	packet := make([]byte, 0, len(body)+5)
	packet = append(packet, byte(packetType)<<4|flags&0x0F)
	packet = append(packet, EncodeRemainingLength(len(body))...)
	return append(packet, body...)
}

func ValidateFlags(pt PacketType, flags byte) bool {
	allowed := allowedFlags[pt]
	return (flags & ^allowed) == 0
}

func (p *Payload) CheckRemainingLength() bool {
	return p.CurrentPtr < p.ContextLen
}
