package proto

import (
	"encoding/binary"
	"fmt"
)

// Commands sent to the in-sandbox shell over the control socket.
const (
	CmdInput  byte = 1
	CmdSignal byte = 2
)

// Responses received from the in-sandbox shell.
const (
	RespPrompt byte = 1
	RespBegin  byte = 2
)

// EncodeInput frames a line to inject at the shell prompt.
func EncodeInput(line string) []byte {
	pkt := make([]byte, 0, 1+len(line))
	pkt = append(pkt, CmdInput)
	pkt = append(pkt, line...)
	return pkt
}

// EncodeSignal frames a signal delivery request.
func EncodeSignal(signum int32) []byte {
	pkt := make([]byte, 5)
	pkt[0] = CmdSignal
	binary.LittleEndian.PutUint32(pkt[1:], uint32(signum))
	return pkt
}

// DecodeResponse splits one control packet into its tag and payload.
func DecodeResponse(pkt []byte) (tag byte, payload []byte, err error) {
	if len(pkt) == 0 {
		return 0, nil, fmt.Errorf("proto: empty control packet")
	}
	return pkt[0], pkt[1:], nil
}
