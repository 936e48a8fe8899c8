package packet

import (
	"bytes"
	"testing"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/mqtt"
)

func readPacket(t *testing.T, raw []byte) *mqtt.Packet {
	t.Helper()
	packet, err := mqtt.ReadPacket(bytes.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("failed to read packet: %v", err)
	}
	return packet
}

func TestParseConnectPacket(t *testing.T) {
	result, resp, err := ParseConnectPacket(readPacket(t, NewConnectPacket("client-1", true, 30)))
	if err != nil || resp != nil {
		t.Fatalf("unexpected error %v (resp %x)", err, resp)
	}
	if result.ClientID() != "client-1" {
		t.Errorf("expect client-1, got %s", result.ClientID())
	}
	if !result.ConnectFlag.CleanSession || result.KeepAlive != 30 {
		t.Errorf("unexpected flags %+v keepalive %d", result.ConnectFlag, result.KeepAlive)
	}
}

func TestParseConnectPacketRejectsEmptyPersistentClientID(t *testing.T) {
	_, resp, err := ParseConnectPacket(readPacket(t, NewConnectPacket("", false, 30)))
	if err == nil {
		t.Fatal("expect error for empty client id without clean session")
	}
	if !bytes.Equal(resp, NewConnectAckPacket(false, IdentifierRejected)) {
		t.Errorf("unexpected CONNACK %x", resp)
	}
}

func TestParseConnectPacketProtocolVersion(t *testing.T) {
	raw := NewConnectPacket("c", true, 0)
	// protocol level sits right after the fixed header and "MQTT"
	raw[2+6] = 0x05
	_, resp, err := ParseConnectPacket(readPacket(t, raw))
	if err == nil {
		t.Fatal("expect unsupported protocol error")
	}
	if !bytes.Equal(resp, []byte{0x20, 0x02, 0x00, byte(UnacceptableProtocol)}) {
		t.Errorf("unexpected CONNACK %x", resp)
	}
}

func TestConnectAck(t *testing.T) {
	if !bytes.Equal(NewConnectAckPacket(false, Accepted), []byte{0x20, 0x02, 0x00, 0x00}) {
		t.Error("unexpected accepted CONNACK")
	}
	if !bytes.Equal(NewConnectAckPacket(true, Accepted), []byte{0x20, 0x02, 0x01, 0x00}) {
		t.Error("unexpected session present CONNACK")
	}
}

func TestPublishPacket(t *testing.T) {
	tests := []struct {
		qos     byte
		payload []byte
	}{
		{0, []byte(`{"t":1}`)},
		{1, []byte("21.5")},
		{0, nil},
	}
	for _, tt := range tests {
		raw := NewPublishPacket(&PublishPacketPayloads{
			PacketFlag: PublishPacketFlag{QoS: tt.qos},
			TopicName:  NewFieldPayload("home/temp"),
			PacketID:   7,
			Payload:    tt.payload,
		})
		result, err := ParsePublishPacket(readPacket(t, raw))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TopicName.String() != "home/temp" || !bytes.Equal(result.Payload, tt.payload) {
			t.Errorf("unexpected publish %+v", result)
		}
		if tt.qos > 0 && result.PacketID != 7 {
			t.Errorf("expect packet id 7, got %d", result.PacketID)
		}
	}
}

func TestParsePublishPacketInvalidFlags(t *testing.T) {
	raw := mqtt.EncodePacket(mqtt.PUBLISH, 0x08, encodeField(NewFieldPayload("a")))
	if _, err := ParsePublishPacket(readPacket(t, raw)); err == nil {
		t.Error("expect error for DUP flag with QoS 0")
	}
	raw = mqtt.EncodePacket(mqtt.PUBLISH, 0x06, encodeField(NewFieldPayload("a")))
	if _, err := ParsePublishPacket(readPacket(t, raw)); err == nil {
		t.Error("expect error for QoS 3")
	}
}

func TestSubscribePacket(t *testing.T) {
	result, err := ParseSubscribePacket(readPacket(t, NewSubscribePacket(10, "home/temp", "secret/#")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PacketID != 10 || len(result.Filters) != 2 {
		t.Fatalf("unexpected subscribe %+v", result)
	}
	if result.Filters[1].Topic != "secret/#" || result.Filters[1].QoS != 0 {
		t.Errorf("unexpected filter %+v", result.Filters[1])
	}

	empty := mqtt.EncodePacket(mqtt.SUBSCRIBE, 0x02, []byte{0x00, 0x01})
	if _, err := ParseSubscribePacket(readPacket(t, empty)); err == nil {
		t.Error("expect error for SUBSCRIBE without filters")
	}
}

func TestSubAckPacket(t *testing.T) {
	got := NewSubAckPacket(10, []SubscribeState{SuccessQos0, Failure})
	expect := []byte{0x90, 0x04, 0x00, 0x0A, 0x00, 0x80}
	if !bytes.Equal(got, expect) {
		t.Errorf("expect %x, got %x", expect, got)
	}
}

func TestUnSubscribePacket(t *testing.T) {
	body := append([]byte{0x00, 0x05}, encodeField(NewFieldPayload("home/temp"))...)
	result, err := ParseUnSubscribePacket(readPacket(t, mqtt.EncodePacket(mqtt.UNSUBSCRIBE, 0x02, body)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PacketID != 5 || len(result.Topics) != 1 || result.Topics[0] != "home/temp" {
		t.Errorf("unexpected unsubscribe %+v", result)
	}
	if !bytes.Equal(NewUnSubAckPacket(5), []byte{0xB0, 0x02, 0x00, 0x05}) {
		t.Errorf("unexpected UNSUBACK %x", NewUnSubAckPacket(5))
	}
}

func TestPingResp(t *testing.T) {
	if !bytes.Equal(NewPingRespPacket(), []byte{0xD0, 0x00}) {
		t.Errorf("unexpected PINGRESP %x", NewPingRespPacket())
	}
}
