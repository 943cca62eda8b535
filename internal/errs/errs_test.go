package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPopulatesRecordFromSentinel(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	rec := Wrap(ErrGatewayUnreachable, cause)

	assert.Equal(t, KindConnection, rec.Kind)
	assert.Equal(t, "GATEWAY_UNREACHABLE", rec.Code)
	assert.Equal(t, "Cannot reach gateway", rec.Message)
	assert.True(t, rec.Recoverable)
	assert.NotEmpty(t, rec.Suggestions)
	assert.LessOrEqual(t, len(rec.Suggestions), 3)
}

func TestWrapFallsBackToUnknownForUncatalogedSentinel(t *testing.T) {
	rec := Wrap(errors.New("not in the taxonomy"), nil)

	assert.Equal(t, KindUnknown, rec.Kind)
	assert.Equal(t, "UNKNOWN_ERROR", rec.Code)
	assert.False(t, rec.Recoverable)
}

func TestRecordErrorIncludesCause(t *testing.T) {
	cause := errors.New("boom")
	rec := Wrap(ErrTTSPlaybackFailed, cause)
	assert.Equal(t, "Couldn't speak the reply: boom", rec.Error())
}

func TestRecordErrorWithoutCauseOmitsColon(t *testing.T) {
	rec := Wrap(ErrVADModelLoadFailed, nil)
	assert.Equal(t, "Voice detection failed to start", rec.Error())
}

func TestRecordUnwrapExposesCauseForErrorsIs(t *testing.T) {
	cause := ErrGatewayTimeout
	rec := Wrap(ErrGatewayUnreachable, cause)
	require.ErrorIs(t, rec, ErrGatewayTimeout)
}

func TestCodeCoversEveryTaxonomySentinel(t *testing.T) {
	cases := map[error]string{
		ErrGatewayUnreachable: "GATEWAY_UNREACHABLE",
		ErrGatewayTimeout:     "GATEWAY_TIMEOUT",
		ErrAudioDeviceUnavail: "AUDIO_IO_ERROR",
		ErrSTTEmptyTranscript: "STT_EMPTY",
		ErrSTTProcessFailed:   "STT_PROCESS_ERROR",
		ErrTTSSynthesisFailed: "TTS_SYNTHESIS_ERROR",
		ErrTTSPlaybackFailed:  "TTS_PLAYBACK_ERROR",
		ErrVADModelLoadFailed: "VAD_LOAD_ERROR",
		ErrVADProcessFailed:   "VAD_PROCESS_ERROR",
		ErrInvalidTransition:  "STATE_TRANSITION_ERROR",
		ErrConfigInvalid:      "CONFIG_ERROR",
		ErrUnknown:            "UNKNOWN_ERROR",
	}
	for sentinel, want := range cases {
		assert.Equal(t, want, code(sentinel))
	}
}

func TestKindRecoverableMatchesPolicyTable(t *testing.T) {
	assert.True(t, KindConnection.Recoverable())
	assert.True(t, KindSTT.Recoverable())
	assert.True(t, KindTTS.Recoverable())
	assert.False(t, KindAudioIO.Recoverable())
	assert.False(t, KindVAD.Recoverable())
	assert.False(t, KindState.Recoverable())
	assert.False(t, KindConfig.Recoverable())
	assert.False(t, KindUnknown.Recoverable())
}
