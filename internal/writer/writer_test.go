package writer_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GeoNet/kit/seis/ms"
	"github.com/GeoNet/rsudp/internal/codec"
	"github.com/GeoNet/rsudp/internal/inventory"
	"github.com/GeoNet/rsudp/internal/mseed"
	"github.com/GeoNet/rsudp/internal/pipeline"
	"github.com/GeoNet/rsudp/internal/writer"
	"github.com/pkg/errors"
)

func environment(t *testing.T) *pipeline.Environment {
	t.Helper()

	return &pipeline.Environment{
		Network:    "AM",
		Station:    "R0000",
		Tf:         250,
		SampleRate: 100,
		Channels:   []string{"EHZ", "ENZ"},
		OutputDir:  t.TempDir(),
	}
}

func packet(ch string, at time.Time, k int) codec.Datagram {
	p := codec.Packet{Channel: ch, Time: at, Samples: make([]int32, 25)}
	for i := range p.Samples {
		p.Samples[i] = int32((k*25+i)%200 - 100)
	}
	return codec.Datagram{Raw: codec.Format(p)}
}

// feed sends packets for channels from start for seconds, one cycle per packet.
func feed(t *testing.T, w *writer.Writer, channels []string, start time.Time, seconds int) {
	t.Helper()

	var f pipeline.Flags
	for k := 0; k < seconds*4; k++ {
		at := start.Add(time.Duration(k) * 250 * time.Millisecond)
		for _, c := range channels {
			if err := w.Handle(packet(c, at, k), &f); err != nil {
				t.Fatal(err)
			}
		}
		if err := w.Cycle(&f); err != nil {
			t.Fatal(err)
		}
	}
}

func size(t *testing.T, path string) int64 {
	t.Helper()

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return fi.Size()
}

func TestDayRotation(t *testing.T) {
	env := environment(t)

	w, err := writer.New(env, []string{"all"})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2019, 12, 31, 23, 59, 40, 0, time.UTC)
	midnight := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	feed(t, w, env.Channels, start, 30)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	for _, c := range env.Channels {
		before := mseed.DayPath(env.OutputDir, "AM", "R0000", "00", c, start)
		after := mseed.DayPath(env.OutputDir, "AM", "R0000", "00", c, midnight)

		s1, err := mseed.SummaryFile(before)
		if err != nil {
			t.Fatal(err)
		}
		s2, err := mseed.SummaryFile(after)
		if err != nil {
			t.Fatal(err)
		}

		if !s1.Start.Equal(start) || !s1.End.Equal(midnight.Add(-10*time.Millisecond)) {
			t.Errorf("%s first day %s to %s", c, s1.Start, s1.End)
		}
		if !s2.Start.Equal(midnight) {
			t.Errorf("%s second day starts %s", c, s2.Start)
		}
		if s1.NumSamples+s2.NumSamples != 3000 {
			t.Errorf("%s expected 3000 samples got %d", c, s1.NumSamples+s2.NumSamples)
		}

		b, err := os.ReadFile(before)
		if err != nil {
			t.Fatal(err)
		}
		var last []int32
		for i := 0; i < len(b); i += mseed.RecordLength {
			r, err := ms.NewRecord(b[i : i+mseed.RecordLength])
			if err != nil {
				t.Fatal(err)
			}
			if !r.EndTime().Before(midnight) {
				t.Errorf("%s record ends after midnight %s", c, r.EndTime())
			}
			if last, err = r.Int32s(); err != nil {
				t.Fatal(err)
			}
		}
		// samples cycle through -100..99.
		if n := len(last); n == 0 || last[n-1] != int32((2000-1)%200-100) {
			t.Errorf("%s unexpected last sample %v", c, last)
		}
	}
}

func TestRewriteIsNoop(t *testing.T) {
	env := environment(t)
	start := time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)
	path := mseed.DayPath(env.OutputDir, "AM", "R0000", "00", "EHZ", start)

	w, err := writer.New(env, []string{"EHZ"})
	if err != nil {
		t.Fatal(err)
	}
	feed(t, w, []string{"EHZ"}, start, 20)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	written := size(t, path)

	// a restarted writer sees the same data again.
	w, err = writer.New(env, []string{"EHZ"})
	if err != nil {
		t.Fatal(err)
	}
	feed(t, w, []string{"EHZ"}, start.Add(10*time.Second), 10)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if s := size(t, path); s != written {
		t.Errorf("expected %d bytes after rewrite got %d", written, s)
	}

	sum, err := mseed.SummaryFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if sum.NumSamples != 2000 {
		t.Errorf("expected 2000 samples got %d", sum.NumSamples)
	}
}

func TestTrailingPartialRecord(t *testing.T) {
	env := environment(t)
	start := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	path := mseed.DayPath(env.OutputDir, "AM", "R0000", "00", "EHZ", start)

	samples := make([]int32, 1000)
	for i := range samples {
		samples[i] = int32(i * 7919 % (1 << 20))
	}
	b, _, err := mseed.Encode(mseed.Series{
		Network:    "AM",
		Station:    "R0000",
		Location:   "00",
		Channel:    "EHZ",
		SampleRate: 100,
		Start:      start.Add(-time.Hour),
		Samples:    samples,
	}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) < 700 {
		t.Fatalf("expected more than 700 bytes of records got %d", len(b))
	}
	// a whole record followed by part of the next, as left by an interrupted write.
	if err := mseed.Append(path, b[:700]); err != nil {
		t.Fatal(err)
	}

	w, err := writer.New(env, []string{"all"})
	if err != nil {
		t.Fatal(err)
	}
	feed(t, w, env.Channels, start, 60)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	sum, err := mseed.SummaryFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Trailing != 0 || sum.Size != size(t, path) {
		t.Errorf("expected only whole records got %+v", sum)
	}
	if !sum.End.Equal(start.Add(60*time.Second - 10*time.Millisecond)) {
		t.Errorf("expected EHZ written to %s got %s", start.Add(60*time.Second-10*time.Millisecond), sum.End)
	}

	enz, err := mseed.SummaryFile(mseed.DayPath(env.OutputDir, "AM", "R0000", "00", "ENZ", start))
	if err != nil {
		t.Fatal(err)
	}
	if enz.NumSamples != 6000 {
		t.Errorf("expected 6000 ENZ samples got %d", enz.NumSamples)
	}
}

func TestHandshake(t *testing.T) {
	env := environment(t)
	start := time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)

	w, err := writer.New(env, []string{"all"})
	if err != nil {
		t.Fatal(err)
	}

	// only EHZ arrives, ENZ is waited for then skipped.
	feed(t, w, []string{"EHZ"}, start, 21)

	if _, err := os.Stat(mseed.DayPath(env.OutputDir, "AM", "R0000", "00", "EHZ", start)); err != nil {
		t.Errorf("expected EHZ to be written: %s", err)
	}
	if _, err := os.Stat(mseed.DayPath(env.OutputDir, "AM", "R0000", "00", "ENZ", start)); !os.IsNotExist(err) {
		t.Errorf("expected no ENZ file got %v", err)
	}
}

func TestUnknownChannel(t *testing.T) {
	env := environment(t)

	_, err := writer.New(env, []string{"EHZ", "XYZ"})
	if errors.Cause(err) != writer.ErrUnknownChannel {
		t.Errorf("expected unknown channel error got %v", err)
	}

	_, err = writer.New(env, []string{"HDF"})
	if errors.Cause(err) != writer.ErrUnknownChannel {
		t.Errorf("expected error for a channel not in the stream got %v", err)
	}

	w, err := writer.New(env, []string{"hz"})
	if err != nil {
		t.Fatal(err)
	}
	if c := w.Channels(); len(c) != 2 {
		t.Errorf("expected EHZ and ENZ got %v", c)
	}
}

func TestStationXML(t *testing.T) {
	env := environment(t)

	b, err := os.ReadFile("../inventory/testdata/AM.R0000.xml")
	if err != nil {
		t.Fatal(err)
	}
	if env.Inventory, err = inventory.Parse(b); err != nil {
		t.Fatal(err)
	}

	w, err := writer.New(env, []string{"EHZ"})
	if err != nil {
		t.Fatal(err)
	}
	feed(t, w, []string{"EHZ"}, time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC), 1)

	if s := size(t, filepath.Join(env.OutputDir, "AM.R0000.00.xml")); s != int64(len(b)) {
		t.Errorf("expected %d bytes of xml got %d", len(b), s)
	}
}
