//go:build !cgo

package vad

// WebRTC is unavailable without cgo
type WebRTC struct{}

// NewWebRTC always fails without cgo
func NewWebRTC(mode int) (*WebRTC, error) {
	return nil, ErrUnsupported
}

// IsSpeech is never reached without cgo
func (w *WebRTC) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	return false, ErrUnsupported
}
