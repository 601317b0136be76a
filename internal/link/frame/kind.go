package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the payload carried by a Message. The set is closed:
// zero and any value outside [KindResponse, KindAPI] never decode.
type Kind uint8

const (
	KindResponse       Kind = 1 // ack/nack
	KindDateTime       Kind = 2
	KindDeviceInit     Kind = 3
	KindInstructions   Kind = 4
	KindPictureRequest Kind = 5
	KindDiagnostics    Kind = 6
	KindCommandStatus  Kind = 7
	KindWiFi           Kind = 8
	KindServer         Kind = 9
	KindAPI            Kind = 10
)

// NumKinds is the number of defined kinds. Code that dispatches over every
// kind pins this value so that adding a kind breaks the build there.
const NumKinds = 10

var kindNames = [NumKinds + 1]string{
	KindResponse:       "response",
	KindDateTime:       "datetime",
	KindDeviceInit:     "device-init",
	KindInstructions:   "instructions",
	KindPictureRequest: "picture-request",
	KindDiagnostics:    "diagnostics",
	KindCommandStatus:  "command-status",
	KindWiFi:           "wifi",
	KindServer:         "server",
	KindAPI:            "api",
}

// Valid reports whether k is a defined kind.
func (k Kind) Valid() bool {
	return k >= KindResponse && k <= KindAPI
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// ParseKind accepts either a kind name ("instructions") or its number ("4").
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k := KindResponse; k <= KindAPI; k++ {
		if kindNames[k] == name {
			return k, nil
		}
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 1 && n <= NumKinds {
		return Kind(n), nil
	}
	return 0, fmt.Errorf("unknown message kind %q", s)
}
