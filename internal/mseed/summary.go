package mseed

import (
	"io"
	"os"
	"time"

	"github.com/GeoNet/kit/seis/ms"
)

// Summary describes the records of a single stream.
type Summary struct {
	Network, Station, Channel, Location string
	Start, End                          time.Time
	NumSamples, Records, LastSeq        int
	// Size is the length of the whole records read.
	Size int64
	// Trailing counts the bytes after the last whole record that could be decoded.
	Trailing int64
}

// SingleStream reads miniSEED from r in 512 byte records and returns a summary.
// Expects a single stream (not multiplexed miniSEED) in r.  A short or undecodable
// record ends the summary, it and everything after it are counted in Trailing.
func SingleStream(r io.Reader) (Summary, error) {
	var s Summary

	record := make([]byte, RecordLength)

	for {
		n, err := io.ReadFull(r, record)
		switch {
		case err == io.EOF:
			return s, nil
		case err == io.ErrUnexpectedEOF:
			s.Trailing = int64(n)
			return s, nil
		case err != nil:
			return Summary{}, err
		}

		msr, err := ms.NewRecord(record)
		if err != nil {
			rest, err := io.Copy(io.Discard, r)
			if err != nil {
				return Summary{}, err
			}
			s.Trailing = int64(n) + rest
			return s, nil
		}

		if s.Records == 0 {
			s.Network = msr.Network()
			s.Station = msr.Station()
			s.Channel = msr.Channel()
			s.Location = msr.Location()
			s.Start = msr.StartTime()
		}

		if e := msr.EndTime(); e.After(s.End) {
			s.End = e
		}

		s.NumSamples += msr.SampleCount()
		s.LastSeq = msr.SeqNumber()
		s.Records++
		s.Size += int64(n)
	}
}

// SummaryFile summarises the file at path.  A missing file gives an empty Summary.
func SummaryFile(path string) (Summary, error) {
	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		return Summary{}, nil
	case err != nil:
		return Summary{}, err
	}
	defer f.Close()

	return SingleStream(f)
}

// Repair cuts the file at path back to the whole records described by s.  It does
// nothing when s has no trailing bytes.
func Repair(path string, s Summary) error {
	if s.Trailing == 0 {
		return nil
	}
	return os.Truncate(path, s.Size)
}
