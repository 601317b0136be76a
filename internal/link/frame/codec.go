package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame delimiters and separators.
const (
	StartByte = '$'
	EndByte   = ';'
	Separator = ','
)

// Message is one decoded frame: a kind tag and an ordered field list.
type Message struct {
	Kind   Kind
	Fields []string
}

// NewMessage builds a message from a kind and its fields.
func NewMessage(kind Kind, fields ...string) Message {
	return Message{Kind: kind, Fields: fields}
}

// Ack is the positive response message.
func Ack() Message { return NewMessage(KindResponse, "1") }

// Nack is the negative response message.
func Nack() Message { return NewMessage(KindResponse, "0") }

// IsAck reports whether m is a positive response.
func (m Message) IsAck() bool {
	return m.Kind == KindResponse && len(m.Fields) > 0 && m.Fields[0] == "1"
}

// Field returns the i-th field or "" when absent.
func (m Message) Field(i int) string {
	if i < 0 || i >= len(m.Fields) {
		return ""
	}
	return m.Fields[i]
}

// Equal reports whether two messages carry the same kind and fields.
func (m Message) Equal(o Message) bool {
	if m.Kind != o.Kind || len(m.Fields) != len(o.Fields) {
		return false
	}
	for i := range m.Fields {
		if m.Fields[i] != o.Fields[i] {
			return false
		}
	}
	return true
}

func (m Message) String() string {
	return fmt.Sprintf("%s%v", m.Kind, m.Fields)
}

// Encode renders m in wire form: $<kind>,<field>,...,<CRC4>;
// The checksum covers everything from '$' through the last field.
// A message without fields encodes but cannot be decoded back.
func Encode(m Message) string {
	var b strings.Builder
	b.WriteByte(StartByte)
	b.WriteString(strconv.Itoa(int(m.Kind)))
	for _, f := range m.Fields {
		b.WriteByte(Separator)
		b.WriteString(f)
	}
	body := b.String()
	return fmt.Sprintf("%s%c%04X%c", body, Separator, CRC16([]byte(body)), EndByte)
}

// Decode parses a single frame. A trailing ';' is optional.
func Decode(raw string) (Message, error) {
	text := strings.TrimSuffix(raw, string(EndByte))

	cut := strings.LastIndexByte(text, Separator)
	if cut < 0 {
		return Message{}, decodeErr(ErrMalformedFrame, raw, "no checksum separator")
	}
	body, sum := text[:cut], text[cut+1:]

	if len(sum) != 4 || !isHex(sum) {
		return Message{}, decodeErr(ErrChecksumFormat, raw, fmt.Sprintf("%q is not 4 hex digits", sum))
	}
	want, err := strconv.ParseUint(sum, 16, 16)
	if err != nil {
		return Message{}, decodeErr(ErrChecksumFormat, raw, err.Error())
	}
	if got := CRC16([]byte(body)); got != uint16(want) {
		return Message{}, decodeErr(ErrChecksumMismatch, raw, fmt.Sprintf("expected 0x%04X, got 0x%04X", want, got))
	}

	tokens := strings.Split(body, string(Separator))
	if len(tokens) < 2 {
		return Message{}, decodeErr(ErrTooFewFields, raw, fmt.Sprintf("%d token(s)", len(tokens)))
	}

	kind, ok := parseTag(tokens[0])
	if !ok {
		return Message{}, decodeErr(ErrUnknownType, raw, fmt.Sprintf("tag %q", tokens[0]))
	}
	return Message{Kind: kind, Fields: tokens[1:]}, nil
}

// parseTag reads "$<digits>" into a known kind.
func parseTag(tok string) (Kind, bool) {
	if len(tok) < 2 || tok[0] != StartByte {
		return 0, false
	}
	digits := tok[1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > NumKinds {
		return 0, false
	}
	return Kind(n), true
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'F', c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
