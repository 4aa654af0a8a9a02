package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	orchestration "github.com/koscakluka/stella-core/core"
	"github.com/koscakluka/stella-core/core/audio/miniaudio"
	"github.com/koscakluka/stella-core/core/backend"
	"github.com/koscakluka/stella-core/core/hotword"
	"github.com/koscakluka/stella-core/core/realtime/pusher"
	"github.com/koscakluka/stella-core/core/speechtotext/deepgram"
	"github.com/koscakluka/stella-core/internal/tui"
)

const uiEventBuffer = 64

var _ orchestration.RealtimeDropNotifier = (*pusher.Client)(nil)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a voice conversation with Stella",
	Long: `Run arms the "Stella" wake word and opens the terminal UI.

Say "Stella" or press space to start talking, press space again to stop.
Press t to activate as if the screen was touched, q to quit.`,
	Args: cobra.NoArgs,
	RunE: runConversation,
}

func init() {
	flags := runCmd.Flags()
	flags.StringVar(&cfg.Backend.URL, "backend-url", cfg.Backend.URL, "base URL of the Stella backend")
	flags.StringVar(&cfg.Backend.UserID, "user-id", cfg.Backend.UserID, "user id sent with every utterance")
	flags.StringVar(&cfg.Realtime.Key, "pusher-key", cfg.Realtime.Key, "pusher application key")
	flags.StringVar(&cfg.Realtime.Cluster, "pusher-cluster", cfg.Realtime.Cluster, "pusher cluster")
	flags.StringVar(&cfg.Realtime.Host, "pusher-host", cfg.Realtime.Host, "websocket base URL replacing the pusher cluster")
	flags.StringVar(&cfg.Realtime.AuthEndpoint, "pusher-auth", cfg.Realtime.AuthEndpoint, "private channel auth endpoint")
	flags.StringVar(&cfg.Speech.Language, "language", cfg.Speech.Language, "recognition language")
	flags.StringVar(&cfg.Speech.Synthesizer, "synthesizer", cfg.Speech.Synthesizer, "speech synthesizer (elevenlabs, deepgram)")
	flags.StringVar(&cfg.Speech.Player, "player", cfg.Speech.Player, "audio output (miniaudio, portaudio)")

	rootCmd.AddCommand(runCmd)
}

func runConversation(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog := newLogger(cfg.Log)
	defer closeLog()

	device, err := miniaudio.NewClient()
	if err != nil {
		return fmt.Errorf("failed to open audio device: %w", err)
	}
	defer device.Close()

	player, closePlayer, err := newPlayer(cfg.Speech, device)
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	defer closePlayer()

	synthesizer, voice, err := newSynthesizer(cfg.Speech)
	if err != nil {
		return err
	}

	// Both recognizers capture from the same microphone, the orchestrator
	// never runs them at the same time.
	passive := deepgram.NewRecognizer(device, deepgram.WithAPIKey(cfg.Speech.DeepgramAPIKey))
	active := deepgram.NewRecognizer(device, deepgram.WithAPIKey(cfg.Speech.DeepgramAPIKey))

	realtime := pusher.NewClient(pusher.Options{
		Key:          cfg.Realtime.Key,
		Cluster:      cfg.Realtime.Cluster,
		Host:         cfg.Realtime.Host,
		AuthEndpoint: cfg.Realtime.AuthEndpoint,
	})
	sender := backend.NewSpeechClient(cfg.Backend.URL, backend.WithUserID(cfg.Backend.UserID))

	feed := tui.NewFeed(uiEventBuffer)
	o := orchestration.NewOrchestrator(
		orchestration.WithRecognizers(passive, active),
		orchestration.WithRecognitionLanguage(cfg.Speech.Language),
		orchestration.WithHotwordMatcher(hotword.NewMatcher()),
		orchestration.WithSynthesizer(synthesizer),
		orchestration.WithVoiceConfig(voice),
		orchestration.WithPlayer(player),
		orchestration.WithRealtime(realtime),
		orchestration.WithRealtimeChannel(cfg.Realtime.Channel, cfg.Realtime.Event),
		orchestration.WithSpeechSender(sender),
		orchestration.WithLogger(logger),
		orchestration.WithEventHandler(feed.Publish),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := o.Start(ctx); err != nil {
		return fmt.Errorf("failed to start conversation: %w", err)
	}
	defer o.Close()

	logger.Info("stella started",
		"backend", cfg.Backend.URL,
		"realtime", realtime.Endpoint(),
		"synthesizer", cfg.Speech.Synthesizer,
		"player", cfg.Speech.Player,
	)

	return tui.Run(o, feed, o.Snapshot())
}
