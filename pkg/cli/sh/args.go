package sh

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/robotalks/scanlink/pkg/l0/comm"
)

// ParsePacketArgs builds a packet from CMD [VALUE].
// VALUE is decoded by its form: s:text is a string, x:hex is the raw
// payload, a number with a dot is a float64, a number with a minus sign
// is an int64 and other numbers are uint64. No VALUE means zero payload.
func ParsePacketArgs(args []string) (comm.Packet, error) {
	if len(args) < 1 {
		return comm.Packet{}, fmt.Errorf("CMD required")
	}
	cmd, err := comm.ParseCommand(args[0])
	if err != nil {
		return comm.Packet{}, err
	}
	if len(args) < 2 {
		return comm.FromUint64(cmd, 0), nil
	}
	val := args[1]
	switch {
	case strings.HasPrefix(val, "s:"):
		return comm.FromString(cmd, val[2:])
	case strings.HasPrefix(val, "x:"):
		raw, err := hex.DecodeString(val[2:])
		if err != nil {
			return comm.Packet{}, fmt.Errorf("Invalid VALUE: %v", err)
		}
		if len(raw) > comm.PayloadSize {
			return comm.Packet{}, &comm.PacketLengthError{Kind: comm.TooLong, Length: len(raw), Expected: comm.PayloadSize}
		}
		var data [comm.PayloadSize]byte
		copy(data[:], raw)
		return comm.FromRaw(cmd, data), nil
	case strings.Contains(val, "."):
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return comm.Packet{}, fmt.Errorf("Invalid VALUE: %v", err)
		}
		return comm.FromFloat64(cmd, f), nil
	case strings.HasPrefix(val, "-"):
		n, err := strconv.ParseInt(val, 0, 64)
		if err != nil {
			return comm.Packet{}, fmt.Errorf("Invalid VALUE: %v", err)
		}
		return comm.FromInt64(cmd, n), nil
	default:
		n, err := strconv.ParseUint(val, 0, 64)
		if err != nil {
			return comm.Packet{}, fmt.Errorf("Invalid VALUE: %v", err)
		}
		return comm.FromUint64(cmd, n), nil
	}
}
