// Package events defines the typed conversation event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - conversation.*
//   - session.*
//   - hotword.*
//   - user_input.*
//   - chat.*
//   - assistant_response.*
//   - assistant_playback.*
//   - notice.*
//
// Semantics used across the package:
//
//   - Changed: a flag or state moved to a new value, carries the new value.
//   - Updated: mutable point-in-time snapshot that can change over time.
//   - Started/Ended: lifecycle boundaries.
//
// conversation events
//
//   - StateChanged (conversation.state_changed): the conversation moved
//     between Idle, WakeListening, ActiveListening, Speaking and Paused.
//
// session events
//
//   - SessionStarted (session.started): a session id was minted.
//   - SessionEnded (session.ended): the session was torn down.
//
// hotword events
//
//   - HotwordArmedChanged (hotword.armed_changed): passive listening for the
//     wake word was enabled or disabled.
//   - HotwordDetected (hotword.detected): a passive fragment matched.
//
// user_input events
//
//   - TranscriptUpdated (user_input.transcript_updated): mutable snapshot of
//     the utterance being accumulated, empty after a flush.
//   - UtteranceFlushed (user_input.utterance_flushed): an utterance left the
//     buffer and was handed to the transport.
//   - UtteranceSendFailed (user_input.utterance_send_failed): the transport
//     rejected an utterance.
//
// chat events
//
//   - ChatMessageAppended (chat.message_appended): a user or assistant
//     message was appended to the chat log.
//
// assistant_response events
//
//   - AwaitingResponseChanged (assistant_response.awaiting_changed): an
//     utterance is in flight and no answer has been spoken yet.
//
// assistant_playback events
//
//   - PlaybackStarted (assistant_playback.started): synthesized speech began
//     playing.
//   - PlaybackEnded (assistant_playback.ended): playback finished, failed or
//     was cut short.
//
// notice events
//
//   - Notice (notice.raised): a user-visible, non-fatal problem.
package events
