package keyexpr

import (
	"encoding/json"
	"unicode/utf8"
)

type Encoding string

const (
	EncodingJSON        Encoding = "application/json"
	EncodingText        Encoding = "text/plain;charset=utf-8"
	EncodingOctetStream Encoding = "application/octet-stream"
)

func (e Encoding) String() string {
	return string(e)
}

// GuessEncoding infers the payload encoding from its content.
func GuessEncoding(payload []byte) Encoding {
	if json.Valid(payload) {
		return EncodingJSON
	}
	if utf8.Valid(payload) {
		return EncodingText
	}
	return EncodingOctetStream
}
