// Package mixer keeps one decode source and one gain stage per audio-bearing
// segment under the playhead, routed into a shared mix destination.
package mixer

// HandlePrefix prefixes the surface name of every audio handle, so
// notifications from decoders can be told apart from video surfaces.
const HandlePrefix = "audio:"

// SourceRequest asks the graph for a decode source over one clip.
type SourceRequest struct {
	RequestID uint64
	HandleID  string
	ClipID    string
	Source    string
	At        float64
}

// Graph is the platform mix graph. Implementations deliver commands and return
// an error only when a command cannot be delivered.
type Graph interface {
	// Resume puts the graph in the running state. Sources started on a
	// suspended graph drop their first frames.
	Resume() error
	NewSource(req SourceRequest) (Decoder, error)
	NewGain(id string, level float64) (Gain, error)
}

type Decoder interface {
	Connect(g Gain) error
	Seek(at float64) error
	Start(at float64) error
	Stop() error
	// Position is the decoder's best known source time.
	Position() float64
	// Report records a source time reported by the platform.
	Report(t float64)
	Release() error
}

type Gain interface {
	SetLevel(level float64) error
	// ConnectDestination routes the stage into the shared mix destination.
	ConnectDestination() error
	Disconnect() error
	Release() error
}
