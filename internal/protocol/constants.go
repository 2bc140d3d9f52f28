package protocol

// Default UDP ports. The host streams fragments from HostPort to the client's
// ClientPort and reads auth/input packets on HostPort.
const (
	DefaultHostPort   = 50005
	DefaultClientPort = 50006
)

// MaxDatagramSize is the practical ceiling for one UDP payload.
const MaxDatagramSize = 65535

// InputSize is the fixed length of an encoded input packet: four i32.
const InputSize = 16

// Header sizes for the two fragment layouts.
const (
	HeaderSizeA = 20 // offset, length, total, width, height
	HeaderSizeB = 16 // offset, length, total, kind
)

// InputType identifies an input packet.
type InputType int32

const (
	InputMove          InputType = 1 // pointer move / hover
	InputPrimaryDown   InputType = 2
	InputPrimaryUp     InputType = 3
	InputSecondaryDown InputType = 4
	InputSecondaryUp   InputType = 5
	InputKeyDown       InputType = 6
	InputKeyUp         InputType = 7
)

func (t InputType) String() string {
	switch t {
	case InputMove:
		return "move"
	case InputPrimaryDown:
		return "primary_down"
	case InputPrimaryUp:
		return "primary_up"
	case InputSecondaryDown:
		return "secondary_down"
	case InputSecondaryUp:
		return "secondary_up"
	case InputKeyDown:
		return "key_down"
	case InputKeyUp:
		return "key_up"
	default:
		return "unknown"
	}
}

// PayloadKind is the 4th header field of variant B, as written by the host.
type PayloadKind int32

const (
	KindRaw  PayloadKind = 0
	KindJPEG PayloadKind = 1
)
