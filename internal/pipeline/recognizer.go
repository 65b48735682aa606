// Package pipeline streams microphone audio to Google Cloud Speech.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/rbright/rehearse/internal/audio"
	"github.com/rbright/rehearse/internal/media"
	"github.com/rbright/rehearse/internal/speech"
)

const (
	DefaultLanguageCode = "en-US"
	DefaultLocation     = "global"

	stopTimeout = 20 * time.Second
)

// Config selects the recognition model and the capture device.
type Config struct {
	LanguageCode         string
	Model                string
	AutomaticPunctuation bool
	CredentialsFile      string
	Location             string
	Input                string
	Fallback             string
	DebugDump            bool
}

// recognizeStream is the bidirectional Speech stream.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

type (
	openMicFunc    func(ctx context.Context) (media.Device, error)
	openStreamFunc func(ctx context.Context) (recognizeStream, func() error, error)
)

// Recognizer implements speech.Recognizer over Pulse capture.
type Recognizer struct {
	cfg    Config
	logger *slog.Logger

	openMic    openMicFunc
	openStream openStreamFunc
}

// NewRecognizer builds a recognizer that captures from Pulse and streams to Google.
func NewRecognizer(cfg Config, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = DefaultLanguageCode
	}
	if strings.TrimSpace(cfg.Location) == "" {
		cfg.Location = DefaultLocation
	}

	source := audio.Source{Input: cfg.Input, Fallback: cfg.Fallback, Logger: logger}
	return &Recognizer{
		cfg:        cfg,
		logger:     logger,
		openMic:    source.Acquire,
		openStream: dialGoogle(cfg),
	}
}

// Start opens the microphone and a recognition stream, then pumps audio
// until Stop. Results reach r from a background goroutine.
func (g *Recognizer) Start(ctx context.Context, r speech.Receiver) (speech.Stream, error) {
	mic, err := g.openMic(ctx)
	if err != nil {
		return nil, speech.Unavailablef("open microphone: %w", err)
	}

	grpcStream, closeClient, err := g.openStream(ctx)
	if err != nil {
		_ = mic.Release()
		return nil, classify(err, speech.CodeUnavailable)
	}

	if err := grpcStream.Send(g.configRequest()); err != nil {
		_ = grpcStream.CloseSend()
		_ = closeClient()
		_ = mic.Release()
		return nil, classify(fmt.Errorf("send streaming config: %w", err), speech.CodeUnavailable)
	}

	s := &stream{
		logger:      g.logger,
		mic:         mic,
		grpc:        grpcStream,
		closeClient: closeClient,
		receiver:    r,
		sendDone:    make(chan struct{}),
		recvDone:    make(chan struct{}),
	}
	if g.cfg.DebugDump {
		file, ferr := createDebugFile("speech", "jsonl")
		if ferr != nil {
			g.logger.Warn("speech debug dump disabled", "error", ferr.Error())
		} else {
			s.dump = file
		}
	}

	go s.sendLoop()
	go s.recvLoop()

	g.logger.Debug("speech stream started", "language", g.cfg.LanguageCode, "model", g.cfg.Model)
	return s, nil
}

func (g *Recognizer) configRequest() *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            audio.SampleRate,
					AudioChannelCount:          audio.Channels,
					LanguageCode:               g.cfg.LanguageCode,
					Model:                      g.cfg.Model,
					EnableAutomaticPunctuation: g.cfg.AutomaticPunctuation,
				},
				InterimResults: true,
			},
		},
	}
}

// stream is one running recognition.
type stream struct {
	logger      *slog.Logger
	mic         media.Device
	grpc        recognizeStream
	closeClient func() error
	receiver    speech.Receiver

	sendDone chan struct{}
	recvDone chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	sendErr error
	dump    *os.File
}

// Stop releases the microphone, half-closes the stream and waits until the
// last result has been delivered.
func (s *stream) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if err := s.mic.Release(); err != nil {
			s.logger.Warn("release speech microphone", "error", err.Error())
		}
	})

	waitCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	select {
	case <-s.recvDone:
	case <-waitCtx.Done():
		s.shutdown()
		return speech.Interruptedf("flush speech results: %w", waitCtx.Err())
	}

	s.shutdown()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return classify(fmt.Errorf("send audio: %w", s.sendErr), speech.CodeInterrupted)
	}
	return nil
}

// shutdown closes the client and the debug dump once.
func (s *stream) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeClient != nil {
		if err := s.closeClient(); err != nil {
			s.logger.Debug("close speech client", "error", err.Error())
		}
		s.closeClient = nil
	}
	if s.dump != nil {
		_ = s.dump.Close()
		s.dump = nil
	}
}

// sendLoop forwards microphone frames and half-closes once the microphone is released.
func (s *stream) sendLoop() {
	defer close(s.sendDone)

	for frame := range s.mic.Frames() {
		if len(frame) == 0 {
			continue
		}
		err := s.grpc.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: frame},
		})
		if err != nil {
			// io.EOF means the server ended the stream; Recv reports why.
			if !errors.Is(err, io.EOF) {
				s.mu.Lock()
				s.sendErr = err
				s.mu.Unlock()
			}
			_ = s.mic.Release()
			for range s.mic.Frames() {
			}
			break
		}
	}

	if err := s.grpc.CloseSend(); err != nil {
		s.logger.Debug("close speech send", "error", err.Error())
	}
}

// recvLoop delivers results until the server closes the stream.
func (s *stream) recvLoop() {
	defer close(s.recvDone)

	for {
		resp, err := s.grpc.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return
			}
			_ = s.mic.Release()
			s.receiver.OnError(classify(err, speech.CodeInterrupted))
			return
		}
		s.writeDump(resp)

		if e := resp.GetError(); e != nil && e.GetCode() != 0 {
			_ = s.mic.Release()
			s.receiver.OnError(classify(status.ErrorProto(e), speech.CodeInterrupted))
			return
		}

		for _, result := range resp.GetResults() {
			alternatives := result.GetAlternatives()
			if len(alternatives) == 0 {
				continue
			}
			text := strings.TrimSpace(alternatives[0].GetTranscript())
			if text == "" {
				continue
			}
			s.receiver.OnResult(text, result.GetIsFinal())
		}
	}
}

func (s *stream) writeDump(resp *speechpb.StreamingRecognizeResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dump == nil {
		return
	}
	line, err := protojson.Marshal(resp)
	if err != nil {
		return
	}
	_, _ = s.dump.Write(append(line, '\n'))
}

// classify maps gRPC failures into speech error codes. Denied or
// unauthenticated calls are unavailable; anything else gets fallback.
func classify(err error, fallback speech.Code) error {
	if err == nil {
		return nil
	}
	var se *speech.Error
	if errors.As(err, &se) {
		return err
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition:
		return &speech.Error{Code: speech.CodeUnavailable, Err: err}
	}
	return &speech.Error{Code: fallback, Err: err}
}
