package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-proctor/internal/log"
	"github.com/teslashibe/go-proctor/pkg/monitor"
)

// ErrClosed is returned when the source is used after Close
var ErrClosed = errors.New("video source closed")

// Sink receives decoded JPEG frames
type Sink interface {
	Publish(jpeg []byte, capturedAt time.Time) monitor.FrameSample
}

// Options tunes a Source
type Options struct {
	HandshakeTimeout time.Duration // Signalling dial and each handshake reply
	TrackTimeout     time.Duration // Wait for the first video track
	DecodeInterval   time.Duration // Minimum spacing between decodes
	ICEServers       []string
}

// DefaultOptions returns options for a LAN producer at ~10 decoded fps
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		TrackTimeout:     15 * time.Second,
		DecodeInterval:   100 * time.Millisecond,
	}
}

// Stats counts what the source has received
type Stats struct {
	Packets       uint64 `json:"packets"`
	AccessUnits   uint64 `json:"access_units"`
	FramesDecoded uint64 `json:"frames_decoded"`
	DecodeErrors  uint64 `json:"decode_errors"`
}

// Source receives a producer's H264 track and publishes decoded frames
type Source struct {
	signallingURL string
	producerName  string
	sink          Sink
	opts          Options
	decoder       Decoder
	logger        *slog.Logger

	ws      *websocket.Conn
	wsMu    sync.Mutex
	pc      *webrtc.PeerConnection
	peerID  string
	session atomic.Value // string

	trackReady chan struct{}
	cancel     context.CancelFunc
	closed     atomic.Bool
	wg         sync.WaitGroup

	packets, units, decoded, decodeErrs atomic.Uint64
}

// NewSource creates a source for the named producer on a webrtcsink
// signalling server
func NewSource(signallingURL, producerName string, sink Sink) *Source {
	s := &Source{
		signallingURL: signallingURL,
		producerName:  producerName,
		sink:          sink,
		opts:          DefaultOptions(),
		decoder:       NewFFmpegDecoder(),
		logger:        log.With("component", "video", "producer", producerName),
		trackReady:    make(chan struct{}, 1),
	}
	s.session.Store("")
	return s
}

// SetOptions replaces the source options. Call before Connect.
func (s *Source) SetOptions(opts Options) {
	s.opts = opts
}

// SetDecoder replaces the H264 decoder. Call before Connect.
func (s *Source) SetDecoder(d Decoder) {
	s.decoder = d
}

// Connect performs the signalling handshake and blocks until the video
// track arrives or ctx ends
func (s *Source) Connect(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	ctx, s.cancel = context.WithCancel(ctx)

	dialer := websocket.Dialer{HandshakeTimeout: s.opts.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, s.signallingURL, nil)
	if err != nil {
		return fmt.Errorf("signalling connect: %w", err)
	}
	s.ws = ws

	welcome, err := s.expect(msgWelcome)
	if err != nil {
		return fmt.Errorf("welcome: %w", err)
	}
	s.peerID = welcome.PeerID
	s.logger.Debug("signalling welcome", "peer_id", s.peerID)

	if err := s.send(signal{Type: msgList}); err != nil {
		return fmt.Errorf("list producers: %w", err)
	}
	list, err := s.expect(msgList)
	if err != nil {
		return fmt.Errorf("list producers: %w", err)
	}
	producerID, err := findProducer(list.Producers, s.producerName)
	if err != nil {
		return err
	}

	if err := s.createPeerConnection(); err != nil {
		return fmt.Errorf("peer connection: %w", err)
	}
	if err := s.send(signal{Type: msgStartSession, PeerID: producerID}); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	s.wg.Add(1)
	go s.readSignalling(ctx)

	timer := time.NewTimer(s.opts.TrackTimeout)
	defer timer.Stop()
	select {
	case <-s.trackReady:
		s.logger.Info("video connected", "producer_id", producerID)
		return nil
	case <-timer.C:
		return fmt.Errorf("timeout waiting for video track")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Source) send(msg signal) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return s.ws.WriteJSON(msg)
}

// expect reads one message during the handshake and checks its type
func (s *Source) expect(msgType string) (signal, error) {
	s.ws.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	defer s.ws.SetReadDeadline(time.Time{})

	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return signal{}, err
	}
	msg, err := parseSignal(data)
	if err != nil {
		return signal{}, err
	}
	if msg.Type == msgError {
		return msg, fmt.Errorf("signalling error: %s", msg.Details)
	}
	if msg.Type != msgType {
		return msg, fmt.Errorf("expected %s, got %s", msgType, msg.Type)
	}
	return msg, nil
}

func (s *Source) createPeerConnection() error {
	config := webrtc.Configuration{}
	if len(s.opts.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: s.opts.ICEServers}}
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return err
	}
	s.pc = pc

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.Info("track received", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		select {
		case s.trackReady <- struct{}{}:
		default:
		}
		s.wg.Add(1)
		go s.readTrack(track)
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		session, _ := s.session.Load().(string)
		if c == nil || session == "" {
			return
		}
		if err := s.send(candidateSignal(session, c.ToJSON())); err != nil {
			s.logger.Debug("send candidate failed", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("connection state", "state", state.String())
	})
	return nil
}

func (s *Source) readSignalling(ctx context.Context) {
	defer s.wg.Done()
	for ctx.Err() == nil {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.logger.Warn("signalling read failed", "error", err)
			}
			return
		}
		msg, err := parseSignal(data)
		if err != nil {
			s.logger.Debug("ignoring signal", "error", err)
			continue
		}

		switch msg.Type {
		case msgSessionStarted:
			s.session.Store(msg.SessionID)
		case msgPeer:
			s.handlePeer(msg)
		case msgEndSession:
			s.logger.Info("producer ended session")
			return
		case msgError:
			s.logger.Warn("signalling error", "details", msg.Details)
		}
	}
}

func (s *Source) handlePeer(msg signal) {
	if offer, ok := msg.SDP.offer(); ok {
		if err := s.pc.SetRemoteDescription(offer); err != nil {
			s.logger.Warn("set remote description failed", "error", err)
			return
		}
		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			s.logger.Warn("create answer failed", "error", err)
			return
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			s.logger.Warn("set local description failed", "error", err)
			return
		}
		if err := s.send(answerSignal(msg.SessionID, answer)); err != nil {
			s.logger.Warn("send answer failed", "error", err)
		}
	}
	if msg.ICE != nil {
		if err := s.pc.AddICECandidate(msg.ICE.init()); err != nil {
			s.logger.Debug("add candidate failed", "error", err)
		}
	}
}

// readTrack depacketizes the track and decodes at most once per
// DecodeInterval
func (s *Source) readTrack(track *webrtc.TrackRemote) {
	defer s.wg.Done()

	var (
		asm        assembler
		stream     gop
		lastDecode time.Time
	)
	for !s.closed.Load() {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		s.packets.Add(1)

		au, ok := asm.push(pkt)
		if !ok {
			continue
		}
		s.units.Add(1)
		stream.add(au)

		if time.Since(lastDecode) < s.opts.DecodeInterval {
			continue
		}
		data := stream.bytes()
		if data == nil {
			continue
		}
		lastDecode = time.Now()
		s.decode(data, lastDecode)
	}
}

func (s *Source) decode(data []byte, at time.Time) {
	frame, err := s.decoder.Decode(context.Background(), data)
	if err != nil {
		s.decodeErrs.Add(1)
		s.logger.Debug("decode failed", "error", err)
		return
	}
	if isBlankFrame(frame) {
		return
	}
	s.decoded.Add(1)
	s.sink.Publish(frame, at)
}

// Stats returns receive counters
func (s *Source) Stats() Stats {
	return Stats{
		Packets:       s.packets.Load(),
		AccessUnits:   s.units.Load(),
		FramesDecoded: s.decoded.Load(),
		DecodeErrors:  s.decodeErrs.Load(),
	}
}

// Close tears down the peer connection and signalling
func (s *Source) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	if s.pc != nil {
		errs = append(errs, s.pc.Close())
	}
	if s.ws != nil {
		errs = append(errs, s.ws.Close())
	}
	s.wg.Wait()
	return errors.Join(errs...)
}
