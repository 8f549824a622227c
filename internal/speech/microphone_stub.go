//go:build !portaudio

package speech

// OpenDefaultMicrophone requires building with -tags portaudio.
func OpenDefaultMicrophone(MicrophoneConfig) (Microphone, error) {
	return nil, ErrNoMicrophone
}
