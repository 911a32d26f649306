package video

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
)

func single(nal []byte, marker bool) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{Marker: marker}, Payload: nal}
}

// fua splits nal into FU-A fragments of size n
func fua(nal []byte, n int) []*rtp.Packet {
	indicator := nal[0]&0xE0 | 28
	nalType := nal[0] & 0x1F
	body := nal[1:]

	var pkts []*rtp.Packet
	for i := 0; i < len(body); i += n {
		end := i + n
		if end > len(body) {
			end = len(body)
		}
		header := nalType
		if i == 0 {
			header |= 0x80
		}
		if end == len(body) {
			header |= 0x40
		}
		payload := append([]byte{indicator, header}, body[i:end]...)
		pkts = append(pkts, &rtp.Packet{Header: rtp.Header{Marker: end == len(body)}, Payload: payload})
	}
	return pkts
}

func TestAssembler_SingleNALUnits(t *testing.T) {
	var a assembler
	sps := []byte{0x67, 1, 2, 3}
	pps := []byte{0x68, 4, 5}
	idr := []byte{0x65, 6, 7, 8, 9}

	if _, ok := a.push(single(sps, false)); ok {
		t.Fatal("unit completed before marker")
	}
	if _, ok := a.push(single(pps, false)); ok {
		t.Fatal("unit completed before marker")
	}
	au, ok := a.push(single(idr, true))
	if !ok {
		t.Fatal("unit not completed on marker")
	}

	got := nalTypes(au)
	want := []byte{nalSPS, nalPPS, nalIDR}
	if !bytes.Equal(got, want) {
		t.Errorf("nalTypes = %v, want %v", got, want)
	}
	if !isKeyframe(au) {
		t.Error("unit should be a keyframe")
	}
}

func TestAssembler_FragmentedUnit(t *testing.T) {
	var a assembler
	nal := append([]byte{0x41}, bytes.Repeat([]byte{0xAB}, 50)...)

	var (
		au []byte
		ok bool
	)
	pkts := fua(nal, 16)
	for i, p := range pkts {
		au, ok = a.push(p)
		if ok != (i == len(pkts)-1) {
			t.Fatalf("packet %d: completed = %v", i, ok)
		}
	}

	if !bytes.HasSuffix(au, nal) {
		t.Errorf("reassembled NAL mismatch: %x", au)
	}
	if isKeyframe(au) {
		t.Error("non-IDR slice reported as keyframe")
	}
}

func TestGOP_StartsAtKeyframe(t *testing.T) {
	var g gop
	delta := append(append([]byte{}, startCode...), 0x41, 1)
	key := append(append([]byte{}, startCode...), 0x65, 2)

	g.add(delta)
	if g.bytes() != nil {
		t.Fatal("units before the first keyframe must be dropped")
	}

	g.add(key)
	g.add(delta)
	if g.units != 2 {
		t.Errorf("units = %d, want 2", g.units)
	}

	g.add(key)
	if g.units != 1 || !bytes.Equal(g.bytes(), key) {
		t.Errorf("keyframe should restart the buffer, got %d units", g.units)
	}
}

func TestLastJPEG(t *testing.T) {
	first := []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 0xFF, 0xD9}
	second := []byte{0xFF, 0xD8, 0xFF, 0xDB, 2, 0xFF, 0xD9}

	got := lastJPEG(append(append([]byte{}, first...), second...))
	if !bytes.Equal(got, second) {
		t.Errorf("lastJPEG = %x, want %x", got, second)
	}
	if lastJPEG([]byte("no image")) != nil {
		t.Error("expected nil for stream without a JPEG")
	}
}
