package protocol

// DecoderState carries the memory some decoders need between packets.
//
// Remotes of the nexa and waveman codeswitch kind are known to emit a
// stray turnon or bell right after a turnoff. The decoders drop the first
// non-turnoff code that follows a turnoff.
//
// A DecoderState is not safe for concurrent use. The zero value is ready.
type DecoderState struct {
	nexaLastWasTurnOff    bool
	wavemanLastWasTurnOff bool
}

// NewDecoderState returns a fresh DecoderState.
func NewDecoderState() *DecoderState {
	return &DecoderState{}
}

// Reset clears all flags.
func (s *DecoderState) Reset() {
	*s = DecoderState{}
}
