// voiceloop is a full-duplex, local, low-latency voice conversation
// engine: Voice Activity Detection, Speech-to-Text, an LLM gateway, and
// Text-to-Speech wired through the owned-collaborator tree described in
// DESIGN.md, adapted from the teacher's cmd/assistant/main.go wiring.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrelvoice/voiceloop/internal/audioio"
	"github.com/kestrelvoice/voiceloop/internal/config"
	"github.com/kestrelvoice/voiceloop/internal/conversation"
	"github.com/kestrelvoice/voiceloop/internal/errs"
	"github.com/kestrelvoice/voiceloop/internal/gateway"
	"github.com/kestrelvoice/voiceloop/internal/jitter"
	"github.com/kestrelvoice/voiceloop/internal/logging"
	"github.com/kestrelvoice/voiceloop/internal/metrics"
	"github.com/kestrelvoice/voiceloop/internal/playback"
	"github.com/kestrelvoice/voiceloop/internal/session"
	"github.com/kestrelvoice/voiceloop/internal/speech"
	"github.com/kestrelvoice/voiceloop/internal/sttengine"
	"github.com/kestrelvoice/voiceloop/internal/ttsengine"
	"github.com/kestrelvoice/voiceloop/internal/vad"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := logging.New(cfg.Verbose)
	logger.Info("voiceloop starting (gateway=%s, stt=%s, tts=%s)", cfg.Gateway, cfg.STTProvider, cfg.TTSProvider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	registry := prometheus.NewRegistry()
	metricsReg := metrics.NewRegistry(registry, metrics.Callbacks{
		OnThresholdExceeded: func(t metrics.SampleType, actual, target int64) {
			logger.Warn("metrics: %s exceeded target (%dms > %dms)", t, actual, target)
		},
	})
	perfMon := metrics.NewPerformanceMonitor(metrics.PerformanceMonitorConfig{
		Window:                time.Duration(cfg.PerfWindowMs) * time.Millisecond,
		MinSamplesForBaseline: cfg.PerfMinSamples,
		CheckInterval:         time.Duration(cfg.PerfCheckIntervalMs) * time.Millisecond,
	}, metrics.PerformanceMonitorCallbacks{
		OnLevelChanged: func(level metrics.Level) { logger.Warn("performance level changed: %s", level) },
		OnRecommendation: func(level metrics.Level, rec string) {
			if level != metrics.LevelNormal {
				logger.Warn("performance: %s", rec)
			}
		},
	})
	go servePrometheus(registry, logger)

	logger.Info("loading speech models...")
	vadModel, err := vad.NewSileroAdapter(vad.SileroConfig{
		ModelPath:  cfg.VADModel,
		SampleRate: cfg.SampleRate,
		NumThreads: cfg.VADThreads,
		Debug:      cfg.Verbose,
	})
	if err != nil {
		log.Fatalf("failed to load VAD model: %v", err)
	}
	defer vadModel.Close()

	sttEngine, err := sttengine.New(sttengine.Config{
		Encoder:    cfg.WhisperEncoder,
		Decoder:    cfg.WhisperDecoder,
		Tokens:     cfg.WhisperTokens,
		Language:   cfg.STTLanguage,
		Provider:   cfg.STTProvider,
		NumThreads: cfg.STTThreads,
		SampleRate: cfg.SampleRate,
		Timeout:    sttengine.DefaultTimeout,
		Verbose:    cfg.Verbose,
	})
	if err != nil {
		log.Fatalf("failed to load STT engine: %v", err)
	}
	defer sttEngine.Close()
	logger.Info("speech recognition ready")

	ttsEngine, err := ttsengine.New(ttsengine.Config{
		Model:      cfg.TTSModel,
		Voices:     cfg.TTSVoices,
		Tokens:     cfg.TTSTokens,
		DataDir:    cfg.TTSData,
		Lexicon:    cfg.TTSLexicon,
		Language:   cfg.TTSLanguage,
		SpeakerID:  cfg.TTSSpeakerID,
		Speed:      cfg.TTSSpeed,
		Provider:   cfg.TTSProvider,
		NumThreads: cfg.TTSThreads,
		Verbose:    cfg.Verbose,
	})
	if err != nil {
		log.Fatalf("failed to load TTS engine: %v", err)
	}
	defer ttsEngine.Close()
	logger.Info("text-to-speech ready")

	vadCfg := vad.Config{
		Threshold:                cfg.VadThreshold,
		BargeInThreshold:         cfg.BargeInThreshold,
		SilenceDurationMs:        int(cfg.VADSilenceDuration * 1000),
		MinSpeechMs:              cfg.VADMinSpeechMs,
		FrameDurationMs:          cfg.VADFrameDurationMs,
		SampleRate:               cfg.SampleRate,
		BargeInConsecutiveFrames: cfg.BargeInConsecutiveFrames,
	}
	if vadCfg.MinSpeechMs == 0 {
		vadCfg.MinSpeechMs = vad.DefaultConfig().MinSpeechMs
	}
	if vadCfg.FrameDurationMs == 0 {
		vadCfg.FrameDurationMs = vad.DefaultConfig().FrameDurationMs
	}

	var gw gateway.Gateway
	switch cfg.Gateway {
	case config.GatewayWebSocket:
		gw = gateway.NewWebSocket(gateway.WebSocketConfig{URL: cfg.GatewayWSURL, Token: cfg.GatewayToken})
	default:
		gw, err = gateway.NewOllama(gateway.OllamaConfig{
			Host:         cfg.OllamaURL,
			Model:        cfg.OllamaModel,
			SystemPrompt: cfg.SystemPrompt,
			MaxHistory:   cfg.MaxHistory,
			Token:        cfg.GatewayToken,
		})
		if err != nil {
			log.Fatalf("failed to create gateway: %v", err)
		}
	}
	defer gw.Close()

	logger.Info("checking gateway connection...")
	if err := gw.HealthCheck(ctx); err != nil {
		logger.Warn("gateway unreachable at startup: %v", err)
	} else {
		logger.Info("gateway connected")
	}

	persist := session.NewPersistence(cfg.SessionFile, logger)

	conv := conversation.New(conversation.Callbacks{
		OnStateChange: func(from, to conversation.State, reason string) {
			logger.Debug("state: %s -> %s (%s)", from, to, reason)
		},
	})

	orchestrator := ttsengine.NewOrchestrator(ttsEngine, ttsengine.OrchestratorConfig{MinChunkChars: cfg.MinChunkChars}, ttsengine.Callbacks{
		OnError: func(err error) { logger.Warn("tts: %v", err) },
		OnFirstChunkLatency: func(elapsed time.Duration) {
			metricsReg.RecordTTSFirstAudio(elapsed.Milliseconds())
		},
	})

	speaker := audioio.NewMalgoSpeaker(ttsEngine.SampleRate())

	jitterCfg := jitter.Config{
		BufferSizeMs:     cfg.JitterBufferMs,
		LowWatermarkMs:   cfg.JitterLowWatermarkMs,
		FrameDurationMs:  cfg.JitterFrameDurationMs,
		SampleRate:       ttsEngine.SampleRate(),
		CrossfadeMs:      cfg.JitterCrossfadeMs,
		CrossfadeEnabled: cfg.JitterCrossfadeOn,
	}

	var mgr *session.Manager

	player := playback.New(orchestrator, speaker, jitterCfg, playback.Callbacks{
		OnSpeakingComplete: func() { mgr.OnSpeakingComplete() },
		OnError:            func(err error) { mgr.OnSpeakingFailed(err) },
		OnTextFallback:     func(text string) { logger.Info("assistant (text fallback): %s", text) },
		OnUnderrun: func(requested, available int) {
			logger.Debug("playback: underrun requested=%d available=%d", requested, available)
		},
	})

	speechPipeline := speech.New(vadModel, vadCfg, sttEngine, speech.Callbacks{
		OnSpeechStarted: func() { mgr.OnSpeechStarted() },
		OnBargeIn:       func() { mgr.OnSpeechStarted() },
		OnTranscript: func(text string, audioDurationMs, sttDurationMs int) {
			mgr.OnTranscript(ctx, text, audioDurationMs, sttDurationMs)
		},
		OnEmptyTranscript: func(reason string) { mgr.OnEmptyTranscript(reason) },
		OnError:           func(err error) { logger.Warn("speech: %v", err) },
	})

	mgr = session.New(conv, speechPipeline, player, gw, persist, metricsReg, session.Config{
		BargeInEnabled:    cfg.BargeInEnabled,
		BargeInCooldownMs: cfg.BargeInCooldownMs,
		WakeWord:          cfg.WakeWord,
	}, logger, session.Callbacks{
		OnTextFallback: func(text string) { logger.Info("assistant: %s", text) },
		OnError: func(err error) {
			if rec, ok := err.(*errs.Record); ok && len(rec.Suggestions) > 0 {
				logger.Warn("session: %s (try: %s)", rec.Message, strings.Join(rec.Suggestions, "; "))
				return
			}
			logger.Warn("session: %v", err)
		},
	})

	monitor := gateway.NewMonitor(gw, cfg.PollIntervalMs, gateway.MonitorCallbacks{
		OnConnected:    mgr.OnGatewayConnected,
		OnDisconnected: mgr.OnGatewayDisconnected,
		OnError:        func(err error) { logger.Warn("gateway monitor: %v", err) },
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	recovery := gateway.NewRecovery(gw, gateway.DefaultRecoveryConfig())
	go watchRecovery(ctx, monitor, recovery, mgr, logger)

	capturer := audioio.NewMalgoCapturer(cfg.SampleRate, vad.FrameSamples)
	if err := capturer.Start(func(frame []int16) {
		if err := speechPipeline.ProcessFrame(frame); err != nil {
			logger.Warn("speech pipeline: %v", err)
		}
	}); err != nil {
		log.Fatalf("failed to start audio capture: %v", err)
	}
	defer capturer.Stop()

	mgr.Start()
	if cfg.WakeWord != "" {
		logger.Info("listening for wake word: %q", cfg.WakeWord)
	} else {
		logger.Info("listening... (speak to interact, Ctrl+C to quit)")
	}

	go metricsLoop(ctx, perfMon, metricsReg)

	<-sigChan
	logger.Info("shutting down...")
	mgr.Stop()
	cancel()

	shutdownDone := make(chan struct{})
	go func() {
		capturer.Stop()
		player.Stop()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		logger.Info("shutdown complete")
	case <-time.After(5 * time.Second):
		logger.Warn("shutdown timeout, forcing exit")
	}
}

// watchRecovery drives Connection Recovery (§4.10) whenever the monitor
// reports the gateway disconnected, and stops it the moment the monitor
// sees the gateway come back (covering the case the gateway recovers on
// its own between recovery attempts).
func watchRecovery(ctx context.Context, monitor *gateway.Monitor, recovery *gateway.Recovery, mgr *session.Manager, logger logging.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	wasConnected := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connected := monitor.Connected()
			if wasConnected && !connected && !recovery.Recovering() {
				logger.Warn("gateway disconnected, starting recovery")
				go func() {
					result := recovery.StartRecovery(ctx)
					if result.Success {
						logger.Info("gateway recovered after %d attempt(s)", result.Attempts)
					} else if result.Error != nil {
						logger.Warn("gateway recovery gave up: %v", result.Error)
					}
				}()
			}
			if connected && recovery.Recovering() {
				recovery.Cancel()
			}
			wasConnected = connected
		}
	}
}

// metricsLoop periodically samples the STT latency gauge into the
// Performance Monitor's sliding window and logs its classification
// (§4.14).
func metricsLoop(ctx context.Context, perfMon *metrics.PerformanceMonitor, reg *metrics.Registry) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := reg.Snapshot(metrics.TypeSTT)
			if snap.Count == 0 {
				continue
			}
			perfMon.Record(int64(snap.Avg))
			perfMon.Check()
		}
	}
}

// servePrometheus exposes the latency histograms on :9090/metrics, the
// same promhttp.Handler wiring the broader example pack uses.
func servePrometheus(registry *prometheus.Registry, logger logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe("127.0.0.1:9090", mux); err != nil {
		logger.Debug("metrics server stopped: %v", err)
	}
}
