package runloop

import (
	"bytes"
	"fmt"
	"strings"
)

// Frame delimiters emitted by the injected UIAutomation script around each
// JSON response.
const (
	frameStartMarker = "OUTPUT_JSON:\n"
	frameEndMarker   = "}\nEND_OUTPUT"
)

// FrameState classifies the outcome of scanning a log slice for a
// response frame.
type FrameState int

const (
	// FrameMissing means no start marker was found in the slice
	FrameMissing FrameState = iota
	// FramePartial means a start marker was found but the end marker has
	// not been written yet
	FramePartial
	// FrameComplete means a fully delimited frame was found
	FrameComplete
)

// FrameScan is the result of DecodeFrame. Offsets are relative to the
// scanned slice.
type FrameScan struct {
	State FrameState
	Start int    // offset of the start marker (partial and complete frames)
	JSON  []byte // payload between the markers, closing brace included (complete frames)
	End   int    // offset one past the end marker (complete frames)
}

// EncodeCommand renders one command line for the engine's pipe. Each
// backslash in the text becomes four so the payload survives the two
// unescaping layers between the pipe and the script runtime.
func EncodeCommand(index int, text string) string {
	escaped := strings.ReplaceAll(text, `\`, `\\\\`)
	return fmt.Sprintf("%d:%s", index, escaped)
}

// DecodeFrame scans buf for the first delimited JSON response frame.
func DecodeFrame(buf []byte) FrameScan {
	start := bytes.Index(buf, []byte(frameStartMarker))
	if start < 0 {
		return FrameScan{State: FrameMissing}
	}

	payloadStart := start + len(frameStartMarker)
	end := bytes.Index(buf[payloadStart:], []byte(frameEndMarker))
	if end < 0 {
		return FrameScan{State: FramePartial, Start: start}
	}

	return FrameScan{
		State: FrameComplete,
		Start: start,
		JSON:  buf[payloadStart : payloadStart+end+1],
		End:   payloadStart + end + len(frameEndMarker),
	}
}
