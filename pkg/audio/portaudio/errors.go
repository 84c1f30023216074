package portaudio

import "errors"

// ErrUnavailable is returned by [Open] when the binary was built without
// PortAudio support.
var ErrUnavailable = errors.New("portaudio: capture not compiled in (build with -tags portaudio)")
