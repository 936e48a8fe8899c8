// Package mqtt 实现了MQTT 3.1.1协议的固定头部编解码
package mqtt

import "fmt"

// PacketType 定义了MQTT控制报文的类型
type PacketType byte

const (
	CONNECT     PacketType = iota + 1 // 客户端请求连接到服务器
	CONNACK                           // 连接确认
	PUBLISH                           // 发布消息
	PUBACK                            // 发布确认
	PUBREC                            // 发布收到（QoS 2第一步）
	PUBREL                            // 发布释放（QoS 2第二步）
	PUBCOMP                           // 发布完成（QoS 2第三步）
	SUBSCRIBE                         // 订阅请求
	SUBACK                            // 订阅确认
	UNSUBSCRIBE                       // 取消订阅
	UNSUBACK                          // 取消订阅确认
	PINGREQ                           // 心跳请求
	PINGRESP                          // 心跳响应
	DISCONNECT                        // 断开连接
)

var packetTypeNames = map[PacketType]string{
	CONNECT:     "CONNECT",
	CONNACK:     "CONNACK",
	PUBLISH:     "PUBLISH",
	PUBACK:      "PUBACK",
	PUBREC:      "PUBREC",
	PUBREL:      "PUBREL",
	PUBCOMP:     "PUBCOMP",
	SUBSCRIBE:   "SUBSCRIBE",
	SUBACK:      "SUBACK",
	UNSUBSCRIBE: "UNSUBSCRIBE",
	UNSUBACK:    "UNSUBACK",
	PINGREQ:     "PINGREQ",
	PINGRESP:    "PINGRESP",
	DISCONNECT:  "DISCONNECT",
}

func (packetType PacketType) String() string {
	if name, ok := packetTypeNames[packetType]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(packetType))
}

// allowedFlags 定义了每种报文类型允许的标志位
var allowedFlags = map[PacketType]byte{
	CONNECT:     0x00,
	CONNACK:     0x00,
	PUBLISH:     0x0F, // 允许所有标志位组合
	PUBACK:      0x00,
	PUBREC:      0x00,
	PUBREL:      0x02,
	PUBCOMP:     0x00,
	SUBSCRIBE:   0x02,
	SUBACK:      0x00,
	UNSUBSCRIBE: 0x02,
	UNSUBACK:    0x00,
	PINGREQ:     0x00,
	PINGRESP:    0x00,
	DISCONNECT:  0x00,
}

type FixedHeader struct {
	Type            PacketType
	Flags           byte
	RemainingLength int
}

// Payload 是可变头部和有效载荷的读取游标
type Payload struct {
	Context    []byte
	ContextLen int
	CurrentPtr int
}

type Packet struct {
	Header  *FixedHeader
	Payload *Payload
}
