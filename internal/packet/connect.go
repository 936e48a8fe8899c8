package packet

// 控制包类型 CONNECT 相关函数

import (
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/mqtt"
)

type ConnectRespType byte

const (
	Accepted ConnectRespType = iota
	UnacceptableProtocol
	IdentifierRejected
	ServerUnavailable
	AuthenticationFailed
	NotAuthorized
)

// ConnectPacketFlag CONNECT控制包连接标志位
type ConnectPacketFlag struct {
	UsernameFlag    bool
	PasswordFlag    bool
	RemainFlag      bool
	QoSLevel        byte
	WillMessageFlag bool
	CleanSession    bool
}

type ConnectPacketPayloads struct {
	ConnectFlag        ConnectPacketFlag
	ClientIdentifier   FieldPayload
	UsernamePayload    FieldPayload
	PasswordPayload    FieldPayload
	WillMessageTopic   FieldPayload
	WillMessageContent FieldPayload
	KeepAlive          int
}

func (c *ConnectPacketPayloads) ClientID() string {
	return c.ClientIdentifier.String()
}

func NewConnectAckPacket(sessionPresent bool, returnCode ConnectRespType) []byte {
	var flags byte
	if sessionPresent {
		flags = 0x01
	}
	return mqtt.EncodePacket(mqtt.CONNACK, 0, []byte{flags, byte(returnCode)})
}

// ParseConnectPacket 解析 CONNECT 控制包的可变头和负载. When the returned
// CONNACK is not nil it must be sent to the client before closing.
func ParseConnectPacket(packet *mqtt.Packet) (*ConnectPacketPayloads, []byte, error) {
	payload := packet.Payload
	result := &ConnectPacketPayloads{}

	protocolString, err := readPacketPayload(payload)
	if err != nil {
		return result, nil, errors.New("unable to check protocol string")
	}
	if protocolString.String() != "MQTT" {
		return result, nil, fmt.Errorf("incorrect Protocol String: %s", protocolString.String())
	}

	protocolVersion, err := readPacketByte(payload)
	if err != nil {
		return result, nil, fmt.Errorf("unable to read protocol version, details: %v", err)
	}
	if protocolVersion != 0x04 {
		return result, NewConnectAckPacket(false, UnacceptableProtocol), fmt.Errorf("unsupported protocol version %d", protocolVersion)
	}

	connectFlag, err := readPacketByte(payload)
	if err != nil {
		return result, nil, fmt.Errorf("unable to read connect flag, details: %v", err)
	}
	if connectFlag&0x01 != 0 {
		return result, nil, errors.New("reserved connect flag must be 0")
	}

	result.ConnectFlag = ConnectPacketFlag{
		UsernameFlag:    (connectFlag&0x80)>>7 == 1,
		PasswordFlag:    (connectFlag&0x40)>>6 == 1,
		RemainFlag:      (connectFlag&0x20)>>5 == 1,
		QoSLevel:        (connectFlag & 0x18) >> 3,
		WillMessageFlag: (connectFlag&0x04)>>2 == 1,
		CleanSession:    (connectFlag&0x02)>>1 == 1,
	}

	if !result.ConnectFlag.WillMessageFlag && (result.ConnectFlag.RemainFlag || result.ConnectFlag.QoSLevel != 0) {
		return result, nil, errors.New("when will message flag is not set, remain flag must not be set and QoSLevel must be 0")
	}

	data, err := readPacketBytes(payload, 2)
	if err != nil {
		return result, nil, errors.New("unable to read keep alive time")
	}
	result.KeepAlive = int(mqtt.ByteToUInt16(data))

	clientID, err := readPacketPayload(payload)
	if err != nil {
		return result, nil, fmt.Errorf("client ID: %w", err)
	}
	result.ClientIdentifier = clientID
	if clientID.PayloadLength == 0 && !result.ConnectFlag.CleanSession {
		return result, NewConnectAckPacket(false, IdentifierRejected), errors.New("empty client ID requires clean session")
	}

	if result.ConnectFlag.WillMessageFlag {
		willTopic, err := readPacketPayload(payload)
		if err != nil {
			return result, nil, fmt.Errorf("will topic: %w", err)
		}
		result.WillMessageTopic = willTopic

		willContent, err := readPacketPayload(payload)
		if err != nil {
			return result, nil, fmt.Errorf("will content: %w", err)
		}
		result.WillMessageContent = willContent
	}

	if result.ConnectFlag.UsernameFlag {
		username, err := readPacketPayload(payload)
		if err != nil {
			return result, nil, fmt.Errorf("username: %w", err)
		}
		result.UsernamePayload = username
	}

	if result.ConnectFlag.PasswordFlag {
		password, err := readPacketPayload(payload)
		if err != nil {
			return result, nil, fmt.Errorf("password: %w", err)
		}
		result.PasswordPayload = password
	}

	return result, nil, nil
}

// NewConnectPacket encodes a CONNECT packet with only a client id and clean
// session flag, the form used by the bridge's own tests and tooling.
func NewConnectPacket(clientID string, cleanSession bool, keepAlive uint16) []byte {
	body := encodeField(NewFieldPayload("MQTT"))
	body = append(body, 0x04)
	var flags byte
	if cleanSession {
		flags |= 0x02
	}
	body = append(body, flags)
	body = append(body, mqtt.UInt16ToByte(keepAlive)...)
	body = append(body, encodeField(NewFieldPayload(clientID))...)
	return mqtt.EncodePacket(mqtt.CONNECT, 0, body)
}
