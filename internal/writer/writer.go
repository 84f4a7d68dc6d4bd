// Package writer archives the stream as daily STEIM2 miniSEED files, one per channel.
package writer

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/metrics"
	"github.com/GeoNet/rsudp/internal/mseed"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/GeoNet/rsudp/internal/trace"
	"github.com/pkg/errors"
)

var ErrUnknownChannel = errors.New("unknown channel")

const (
	// Handshake bounds the wait, in data time, for every channel to arrive.
	Handshake = 10 * time.Second
	// Lag is how far behind the latest sample data is written.
	Lag = 5 * time.Second
	// flushPeriod is the data time between writes.
	flushPeriod = 10 * time.Second
	day         = 24 * time.Hour
)

// file is the state of the day file a channel is being written to.
type file struct {
	path string
	seq  int
	// end is the time of the last sample in the file.
	end time.Time
}

// Writer is a pipeline.Handler.
type Writer struct {
	env      *pipeline.Environment
	channels []string
	stream   *trace.Stream
	files    map[string]*file

	packets int
	every   int

	started bool
	first   time.Time
	seen    map[string]bool
	xml     bool
}

// New returns a Writer for the stream channels matched by channels, where "all" matches
// every channel.  An entry that can match no known channel gives ErrUnknownChannel.
func New(env *pipeline.Environment, channels []string) (*Writer, error) {
	sel, unknown := env.Select(channels)
	if len(unknown) > 0 {
		return nil, errors.Wrapf(ErrUnknownChannel, "writer: %v", unknown)
	}
	if len(sel) == 0 {
		return nil, errors.Wrapf(ErrUnknownChannel, "writer: none of %v in the stream %v", channels, env.Channels)
	}

	return &Writer{
		env:      env,
		channels: sel,
		stream:   trace.NewStream(),
		files:    make(map[string]*file),
		every:    len(sel) * env.Packets(flushPeriod),
		seen:     make(map[string]bool),
	}, nil
}

// Channels are the channels being written.
func (w *Writer) Channels() []string {
	return w.channels
}

func (w *Writer) wanted(channel string) bool {
	for _, c := range w.channels {
		if c == channel {
			return true
		}
	}
	return false
}

func (w *Writer) Handle(m codec.Message, f *pipeline.Flags) error {
	d, ok := m.(codec.Datagram)
	if !ok {
		return nil
	}

	if c, ok := codec.PeekChannel(d.Raw); !ok || !w.wanted(c) {
		return nil
	}

	p, err := codec.Parse(d.Raw)
	if err != nil {
		if w.env.Debug {
			log.Printf("writer: %s", err)
		}
		return nil
	}

	if w.first.IsZero() {
		w.first = p.Time
	}
	w.seen[p.Channel] = true
	w.packets++

	w.stream.AppendPacket(w.env.Network, w.env.Station, float64(w.env.SampleRate), p)

	return nil
}

// Cycle writes everything older than Lag once every flush period of packets.
func (w *Writer) Cycle(f *pipeline.Flags) error {
	if !w.xml {
		w.xml = true
		if err := w.writeXML(); err != nil {
			log.Printf("writer: %s", err)
		}
	}

	if !w.handshake() || w.packets < w.every {
		return nil
	}
	w.packets = 0

	return w.flush(w.stream.End().Add(-Lag))
}

// Close writes everything held.
func (w *Writer) Close() error {
	return w.flush(w.stream.End().Add(time.Second))
}

// handshake reports whether every channel has arrived or the wait has expired.
func (w *Writer) handshake() bool {
	if w.started {
		return true
	}

	var missing []string
	for _, c := range w.channels {
		if !w.seen[c] {
			missing = append(missing, c)
		}
	}

	switch {
	case len(missing) == 0:
		log.Printf("writer: writing %v to %s", w.channels, filepath.Join(w.env.OutputDir, "data"))
	case !w.first.IsZero() && w.stream.End().Sub(w.first) >= Handshake:
		log.Printf("writer: no data for %v after %s, writing %v", missing, Handshake, w.channels)
	default:
		return false
	}

	w.started = true

	return true
}

func (w *Writer) writeXML() error {
	if w.env.Inventory == nil {
		return nil
	}

	path := filepath.Join(w.env.OutputDir, fmt.Sprintf("%s.%s.00.xml", w.env.Network, w.env.Station))

	return errors.Wrap(w.env.Inventory.WriteXML(path), "writing station xml")
}

// flush writes every sample before cut.  A channel that fails does not stop the others
// and the first error is returned.
func (w *Writer) flush(cut time.Time) error {
	if w.stream.Empty() {
		return nil
	}

	tm := metrics.Start()
	defer tm.Track("writer.flush")

	head := w.stream.Split(cut)

	var first error

channels:
	for _, c := range head.Channels() {
		for _, seg := range head.Segments(c) {
			for _, run := range seg.Runs() {
				if err := w.write(run); err != nil {
					if first == nil {
						first = err
					}
					continue channels
				}
			}
		}
	}

	return first
}

// write appends t to its day files.  Samples already in the files are skipped and no
// record crosses UTC midnight.
func (w *Writer) write(t *trace.Trace) error {
	for t != nil && t.Len() > 0 {
		midnight := mseed.Day(t.Start).Add(day)

		s := trace.NewStream()
		s.Append(t)
		today := s.Split(midnight).Latest(t.Channel)
		t = s.Latest(t.Channel)

		if today == nil {
			break
		}

		if err := w.append(today); err != nil {
			return err
		}
	}

	return nil
}

func (w *Writer) append(t *trace.Trace) error {
	path := mseed.DayPath(w.env.OutputDir, t.Network, t.Station, t.Location, t.Channel, t.Start)

	f, err := w.file(t.Channel, path)
	if err != nil {
		return err
	}

	// skip samples at or before the end of the file.
	i := 0
	if !f.end.IsZero() {
		for i < t.Len() && t.TimeAt(i).Sub(f.end) < t.Delta()/2 {
			i++
		}
	}
	if i >= t.Len() {
		return nil
	}

	start := t.TimeAt(i)

	b, next, err := mseed.Encode(mseed.Series{
		Network:    t.Network,
		Station:    t.Station,
		Location:   t.Location,
		Channel:    t.Channel,
		SampleRate: t.SampleRate,
		Start:      start,
		Samples:    t.Int32s()[i:],
	}, f.seq)
	if err != nil {
		return errors.Wrap(err, "writer: encoding")
	}

	if err := mseed.Append(path, b); err != nil {
		return errors.Wrap(err, "writer")
	}

	f.seq = next
	f.end = t.End()

	if w.env.Debug {
		log.Printf("writer: %s %d samples from %s", filepath.Base(path), t.Len()-i, start.Format(codec.TimeFormat))
	}

	return nil
}

// file returns the state of path for channel, reading the end of an existing file on
// first use.
func (w *Writer) file(channel, path string) (*file, error) {
	if f, ok := w.files[channel]; ok && f.path == path {
		return f, nil
	}

	sum, err := mseed.SummaryFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "writer: reading %s", path)
	}

	if sum.Trailing > 0 {
		log.Printf("writer: warning: %s has %d bytes after the last whole record, truncating", filepath.Base(path), sum.Trailing)
		if err := mseed.Repair(path, sum); err != nil {
			return nil, errors.Wrapf(err, "writer: truncating %s", path)
		}
	}

	f := &file{path: path, seq: sum.LastSeq + 1}
	if sum.Records > 0 {
		f.end = sum.End
		log.Printf("writer: appending to %s after %s", filepath.Base(path), sum.End.Format(codec.TimeFormat))
	}

	w.files[channel] = f

	return f, nil
}
