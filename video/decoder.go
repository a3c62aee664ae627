package video

import (
	"sync"
	"time"

	"droidagent/logger"
)

// maxPendingChunks bounds the pre-decoder buffer; past it the oldest chunks
// drop, since they would be stale by the time a decoder exists anyway.
const maxPendingChunks = 100

// Decoder consumes Annex-B framed H.264 and renders frames to a sink.
type Decoder interface {
	Submit(chunk []byte) error
	Close()
}

// DecoderConfig carries everything a factory needs to build a decoder.
type DecoderConfig struct {
	CSD0   []byte // SPS, Annex-B framed
	CSD1   []byte // PPS, Annex-B framed
	Width  int
	Height int
	Sink   FrameSink
}

// DecoderFactory builds decoders. Production wiring uses NewFFmpegFactory;
// tests inject fakes.
type DecoderFactory func(cfg DecoderConfig) (Decoder, error)

// StreamDecoder owns the decode lifecycle for one device's video stream: it
// captures the H.264 parameter sets from the chunk flow, buffers early
// chunks, builds a decoder once parameter sets and a render target are both
// on hand, and recovers from decode errors without losing the parameter
// sets. csd0/csd1 survive detach and reattach for the lifetime of the
// stream — a new attachment must not have to wait for the encoder to
// resend its config.
type StreamDecoder struct {
	mu      sync.Mutex
	factory DecoderFactory

	csd0 []byte // captured once per stream
	csd1 []byte

	dec     Decoder
	pending [][]byte

	frames   *FrameBuffer
	width    int
	height   int
	attached bool

	quality int // JPEG quality for CaptureFrame
}

// NewStreamDecoder creates a decoder lifecycle around the given factory.
func NewStreamDecoder(factory DecoderFactory) *StreamDecoder {
	return &StreamDecoder{factory: factory, quality: 80}
}

// SetQuality sets the JPEG quality used by CaptureFrame.
func (s *StreamDecoder) SetQuality(quality int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quality > 0 && quality <= 100 {
		s.quality = quality
	}
}

// Attach points the stream at a render target. Cached parameter sets are
// kept, so a reattach starts decoding immediately.
func (s *StreamDecoder) Attach(frames *FrameBuffer, width, height int) bool {
	if frames == nil || width <= 0 || height <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.frames = frames
	s.width = width
	s.height = height
	s.attached = true
	s.startLocked()
	return true
}

// Detach releases the decoder and drops buffered chunks. The parameter sets
// stay cached: they describe the stream, not the attachment.
func (s *StreamDecoder) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.attached = false
	s.frames = nil
}

// Active reports whether a live decoder is consuming chunks.
func (s *StreamDecoder) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dec != nil
}

// HasParameterSets reports whether both SPS and PPS have been seen.
func (s *StreamDecoder) HasParameterSets() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csd0 != nil && s.csd1 != nil
}

// OnChunk feeds one video chunk from the transport. Framing is normalized
// to Annex-B first; the conversion is a no-op for chunks already framed.
func (s *StreamDecoder) OnChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk = ConvertToAnnexB(chunk)

	if s.dec != nil {
		s.submitLocked(chunk)
		return
	}

	// No decoder yet: harvest parameter sets, buffer the rest. Config
	// chunks sometimes pack SPS and PPS together, so walk the units.
	for _, unit := range SplitNALUnits(chunk) {
		switch NALType(unit) {
		case NALTypeSPS:
			if s.csd0 == nil {
				s.csd0 = append([]byte(nil), unit...)
				logger.Debugf("📼 captured SPS (%d bytes)", len(unit))
			}
		case NALTypePPS:
			if s.csd1 == nil {
				s.csd1 = append([]byte(nil), unit...)
				logger.Debugf("📼 captured PPS (%d bytes)", len(unit))
			}
		default:
			s.bufferLocked(unit)
		}
	}
	s.startLocked()
}

// CaptureFrame returns the most recent decoded frame as JPEG, waiting up to
// timeout when nothing has been decoded yet. Nil on timeout.
func (s *StreamDecoder) CaptureFrame(timeout time.Duration) []byte {
	s.mu.Lock()
	frames := s.frames
	quality := s.quality
	s.mu.Unlock()

	if frames == nil {
		return nil
	}
	img := frames.Wait(timeout)
	if img == nil {
		return nil
	}
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		logger.Errorf("❌ frame encode failed: %v", err)
		return nil
	}
	return data
}

// startLocked builds the decoder once parameter sets and target are ready,
// then drains any buffered chunks in arrival order.
func (s *StreamDecoder) startLocked() {
	if s.dec != nil || !s.attached || s.csd0 == nil || s.csd1 == nil {
		return
	}
	dec, err := s.factory(DecoderConfig{
		CSD0:   s.csd0,
		CSD1:   s.csd1,
		Width:  s.width,
		Height: s.height,
		Sink:   s.frames,
	})
	if err != nil {
		logger.Errorf("❌ decoder construction failed: %v", err)
		return
	}
	logger.Debugf("🎬 decoder started (%dx%d, %d buffered chunks)", s.width, s.height, len(s.pending))
	s.dec = dec
	pending := s.pending
	s.pending = nil
	for _, buffered := range pending {
		if !s.submitLocked(buffered) {
			return
		}
	}
}

// submitLocked feeds the live decoder. On error the decoder is released but
// the parameter sets stay, so the next chunk restarts decoding cleanly.
func (s *StreamDecoder) submitLocked(chunk []byte) bool {
	if err := s.dec.Submit(chunk); err != nil {
		logger.Warnf("⚠️ decode error, resetting decoder: %v", err)
		s.dec.Close()
		s.dec = nil
		s.pending = nil
		return false
	}
	return true
}

func (s *StreamDecoder) bufferLocked(chunk []byte) {
	if len(s.pending) >= maxPendingChunks {
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, chunk)
}

func (s *StreamDecoder) releaseLocked() {
	if s.dec != nil {
		s.dec.Close()
		s.dec = nil
	}
	s.pending = nil
}
