package bridge

import (
	"log/slog"
	"time"

	"github.com/framecut/framecut-engine/internal/logging"
	"github.com/framecut/framecut-engine/internal/mixer"
)

const (
	graphTarget       = "graph"
	destinationTarget = "destination"
)

// RemoteGraph is the shell's audio mix graph.
type RemoteGraph struct {
	sender
	now func() time.Time
}

func NewRemoteGraph(t Transport, logger *slog.Logger) *RemoteGraph {
	return &RemoteGraph{
		sender: sender{transport: t, logger: logging.WithComponent(logging.OrDiscard(logger), "graph")},
		now:    time.Now,
	}
}

func (g *RemoteGraph) Resume() error {
	return g.send(Command{Target: graphTarget, Op: "resume"})
}

func (g *RemoteGraph) NewSource(req mixer.SourceRequest) (mixer.Decoder, error) {
	err := g.send(Command{
		Target:    req.HandleID,
		Op:        "source",
		RequestID: req.RequestID,
		ClipID:    req.ClipID,
		Source:    req.Source,
		At:        req.At,
	})
	if err != nil {
		return nil, err
	}
	return &RemoteDecoder{id: req.HandleID, graph: g, base: req.At}, nil
}

func (g *RemoteGraph) NewGain(id string, level float64) (mixer.Gain, error) {
	if err := g.send(Command{Target: id, Op: "gain", Level: level}); err != nil {
		return nil, err
	}
	return &RemoteGain{id: id, graph: g}, nil
}

// RemoteDecoder estimates its source position from wall time while running;
// reports from the shell replace the estimate.
type RemoteDecoder struct {
	id    string
	graph *RemoteGraph

	running bool
	base    float64
	since   time.Time
}

func (d *RemoteDecoder) Connect(g mixer.Gain) error {
	node := ""
	if rg, ok := g.(*RemoteGain); ok {
		node = rg.id
	}
	return d.graph.send(Command{Target: d.id, Op: "connect", Node: node})
}

func (d *RemoteDecoder) Seek(at float64) error {
	if err := d.graph.send(Command{Target: d.id, Op: "seek", At: at}); err != nil {
		return err
	}
	d.base, d.since = at, d.graph.now()
	return nil
}

func (d *RemoteDecoder) Start(at float64) error {
	if err := d.graph.send(Command{Target: d.id, Op: "start", At: at}); err != nil {
		return err
	}
	d.running = true
	d.base, d.since = at, d.graph.now()
	return nil
}

func (d *RemoteDecoder) Stop() error {
	d.base = d.Position()
	d.running = false
	return d.graph.send(Command{Target: d.id, Op: "stop"})
}

func (d *RemoteDecoder) Position() float64 {
	if !d.running {
		return d.base
	}
	return d.base + d.graph.now().Sub(d.since).Seconds()
}

func (d *RemoteDecoder) Report(t float64) {
	d.base, d.since = t, d.graph.now()
}

func (d *RemoteDecoder) Release() error {
	d.running = false
	return d.graph.send(Command{Target: d.id, Op: "release"})
}

type RemoteGain struct {
	id    string
	graph *RemoteGraph
}

func (g *RemoteGain) SetLevel(level float64) error {
	return g.graph.send(Command{Target: g.id, Op: "level", Level: level})
}

func (g *RemoteGain) ConnectDestination() error {
	return g.graph.send(Command{Target: g.id, Op: "connect", Node: destinationTarget})
}

func (g *RemoteGain) Disconnect() error {
	return g.graph.send(Command{Target: g.id, Op: "disconnect"})
}

func (g *RemoteGain) Release() error {
	return g.graph.send(Command{Target: g.id, Op: "release"})
}
