package packet

import "github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/mqtt"

func NewPingRespPacket() []byte {
	return mqtt.EncodePacket(mqtt.PINGRESP, 0, nil)
}
