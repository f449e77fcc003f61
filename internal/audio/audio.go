// Package audio synthesizes narration for generated scripts.
package audio

import (
	"context"
	"encoding/binary"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"

	"github.com/TobiSchelling/reelsmith/internal/script"
	"github.com/TobiSchelling/reelsmith/internal/workspace"
)

// Narration audio arrives as raw little-endian PCM in this format.
const (
	SampleRate  = 24000
	BitDepth    = 16
	NumChannels = 1
	wavPCM      = 1
)

// Dispatcher synthesizes speech for text. A nil result means no audio.
type Dispatcher interface {
	DispatchAudio(ctx context.Context, text string) ([]byte, error)
}

// WAVName is the narration file name for id in the output area.
func WAVName(id string) string { return id + ".wav" }

// WriteWAV wraps raw PCM bytes as a mono 16-bit WAV file. A trailing odd
// byte is dropped.
func WriteWAV(f *os.File, pcm []byte) error {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	enc := wav.NewEncoder(f, SampleRate, BitDepth, NumChannels, wavPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: NumChannels, SampleRate: SampleRate},
		Data:           samples,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// Options control an audio run.
type Options struct {
	// Force resynthesizes narration that already exists.
	Force bool
}

// Result holds the results of an audio run.
type Result struct {
	Generated int
	Skipped   int
	Empty     int
	Errors    int
}

// Synthesizer is the audio stage.
type Synthesizer struct {
	ws     *workspace.Workspace
	tts    Dispatcher
	logger *zap.Logger
}

// NewSynthesizer creates the audio stage.
func NewSynthesizer(ws *workspace.Workspace, tts Dispatcher, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{ws: ws, tts: tts, logger: logger}
}

// Run synthesizes narration for every script without a wav file.
func (s *Synthesizer) Run(ctx context.Context, opts Options) *Result {
	r := &Result{}
	ids, err := s.ws.ListIDs(workspace.Scripts, ".json")
	if err != nil {
		s.logger.Error("listing scripts", zap.Error(err))
		r.Errors++
		return r
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if !opts.Force && s.ws.Exists(workspace.Output, WAVName(id)) {
			r.Skipped++
			continue
		}
		log := s.logger.With(zap.String("id", id))

		sc, err := script.Load(s.ws, id)
		if err != nil {
			log.Error("reading script", zap.Error(err))
			r.Errors++
			continue
		}
		text := sc.Narration()
		if text == "" {
			log.Info("script has no narration text")
			r.Empty++
			continue
		}

		pcm, err := s.tts.DispatchAudio(ctx, text)
		if err != nil {
			log.Error("synthesizing narration", zap.Error(err))
			r.Errors++
			continue
		}
		if len(pcm) == 0 {
			log.Warn("no audio returned")
			r.Empty++
			continue
		}

		if err := s.ws.WriteWith(workspace.Output, WAVName(id), func(f *os.File) error {
			return WriteWAV(f, pcm)
		}); err != nil {
			log.Error("writing narration", zap.Error(err))
			r.Errors++
			continue
		}
		log.Debug("narration written", zap.Int("bytes", len(pcm)))
		r.Generated++
	}

	s.logger.Info("audio generation complete",
		zap.Int("generated", r.Generated),
		zap.Int("skipped", r.Skipped),
		zap.Int("empty", r.Empty),
		zap.Int("errors", r.Errors))
	return r
}
