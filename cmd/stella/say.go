package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const sayTimeout = 2 * time.Minute

var sayCmd = &cobra.Command{
	Use:   "say <text>",
	Short: "Synthesize text and play it",
	Long: `Say runs text through the configured synthesizer and plays the result,
useful to check voice settings and the audio output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSay,
}

func init() {
	flags := sayCmd.Flags()
	flags.StringVar(&cfg.Speech.Synthesizer, "synthesizer", cfg.Speech.Synthesizer, "speech synthesizer (elevenlabs, deepgram)")
	flags.StringVar(&cfg.Speech.VoiceID, "voice", cfg.Speech.VoiceID, "elevenlabs voice id")
	flags.StringVar(&cfg.Speech.DeepgramVoice, "deepgram-voice", cfg.Speech.DeepgramVoice, "deepgram aura voice")
	flags.Float64Var(&cfg.Speech.Speed, "speed", cfg.Speech.Speed, "speaking rate multiplier")
	flags.StringVar(&cfg.Speech.Player, "player", cfg.Speech.Player, "audio output (miniaudio, portaudio)")

	rootCmd.AddCommand(sayCmd)
}

func runSay(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateSpeech(); err != nil {
		return err
	}
	logger, closeLog := newLogger(cfg.Log)
	defer closeLog()

	synthesizer, voice, err := newSynthesizer(cfg.Speech)
	if err != nil {
		return err
	}
	player, closePlayer, err := newPlayer(cfg.Speech, nil)
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	defer closePlayer()

	ctx, cancel := context.WithTimeout(cmd.Context(), sayTimeout)
	defer cancel()

	text := strings.Join(args, " ")
	clip, err := synthesizer.Synthesize(ctx, text, voice)
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer clip.Close()

	ended := make(chan error, 1)
	playback, err := player.Play(ctx, clip, func(err error) { ended <- err })
	if err != nil {
		return fmt.Errorf("failed to play speech: %w", err)
	}
	logger.Info("playing speech", "synthesizer", cfg.Speech.Synthesizer, "voice", voice.VoiceID, "text_length", len(text))

	select {
	case err := <-ended:
		return err
	case <-ctx.Done():
		_ = playback.Stop()
		return ctx.Err()
	}
}
