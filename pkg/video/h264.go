package video

import (
	"bytes"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// H264 NAL unit types
const (
	nalIDR = 5
	nalSPS = 7
	nalPPS = 8
)

// Maximum bytes buffered for one group of pictures before it is dropped
const maxGOPBytes = 8 << 20

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// assembler turns RTP packets into Annex-B access units. An access unit is
// complete when a packet carries the marker bit.
type assembler struct {
	depacketizer codecs.H264Packet
	unit         bytes.Buffer
}

// push adds a packet and returns a completed access unit, if any
func (a *assembler) push(pkt *rtp.Packet) ([]byte, bool) {
	nal, err := a.depacketizer.Unmarshal(pkt.Payload)
	if err != nil {
		a.unit.Reset()
		return nil, false
	}
	a.unit.Write(nal)

	if !pkt.Marker || a.unit.Len() == 0 {
		return nil, false
	}
	au := append([]byte(nil), a.unit.Bytes()...)
	a.unit.Reset()
	return au, true
}

// nalTypes lists the NAL unit types in an Annex-B buffer
func nalTypes(au []byte) []byte {
	var types []byte
	for {
		i := bytes.Index(au, startCode[1:])
		if i < 0 || i+3 >= len(au) {
			return types
		}
		au = au[i+3:]
		types = append(types, au[0]&0x1F)
	}
}

// isKeyframe reports whether an access unit starts a decodable sequence
func isKeyframe(au []byte) bool {
	for _, t := range nalTypes(au) {
		if t == nalIDR || t == nalSPS {
			return true
		}
	}
	return false
}

// gop buffers access units from the last keyframe so the decoder always
// gets a self-contained stream
type gop struct {
	buf     bytes.Buffer
	started bool
	units   int
}

// add appends an access unit, restarting on keyframes. Units before the
// first keyframe are dropped.
func (g *gop) add(au []byte) {
	if isKeyframe(au) {
		g.buf.Reset()
		g.units = 0
		g.started = true
	}
	if !g.started {
		return
	}
	if g.buf.Len()+len(au) > maxGOPBytes {
		g.buf.Reset()
		g.units = 0
		g.started = false
		return
	}
	g.buf.Write(au)
	g.units++
}

func (g *gop) bytes() []byte {
	if !g.started || g.units == 0 {
		return nil
	}
	return g.buf.Bytes()
}
