// Package mseed is for writing STEIM2 compressed miniSEED records and summarising
// the records already written.
package mseed

import (
	"math"
	"time"

	"github.com/GeoNet/kit/seis/ms"
	"github.com/pkg/errors"
)

// RecordLength is the length of every record written.
const RecordLength = 512

// recordLengthExp is log2(RecordLength) for blockette 1000.
const recordLengthExp = 9

const (
	b1000Offset = ms.RecordHeaderSize
	b1001Offset = b1000Offset + ms.BlocketteHeaderSize + ms.Blockette1000Size
	dataOffset  = 64
	dataFrames  = (RecordLength - dataOffset) / frameSize
)

// Series is a contiguous run of samples for one stream.
type Series struct {
	Network, Station, Location, Channel string
	SampleRate                          float64
	Start                               time.Time
	Samples                             []int32
}

func (s Series) timeAt(i int) time.Time {
	return s.Start.Add(time.Duration(math.Round(float64(i) * float64(time.Second) / s.SampleRate)))
}

// Encode packs s into consecutive records numbered from seq.  It returns the records
// and the next sequence number.
func Encode(s Series, seq int) ([]byte, int, error) {
	if s.SampleRate <= 0 {
		return nil, seq, errors.Errorf("invalid sample rate %g", s.SampleRate)
	}

	factor, multiplier := rateFactors(s.SampleRate)

	var out []byte

	for i := 0; i < len(s.Samples); {
		data, n, frames, err := steim2(s.Samples[i:], dataFrames)
		if err != nil {
			return nil, seq, errors.Wrapf(err, "%s.%s.%s.%s", s.Network, s.Station, s.Location, s.Channel)
		}

		start := s.timeAt(i)

		hdr := ms.RecordHeader{
			DataQualityIndicator:         'D',
			ReservedByte:                 ' ',
			NumberOfSamples:              uint16(n),
			SampleRateFactor:             factor,
			SampleRateMultiplier:         multiplier,
			NumberOfBlockettesThatFollow: 2,
			BeginningOfData:              dataOffset,
			FirstBlockette:               b1000Offset,
		}
		hdr.SetSeqNumber(seq % 1000000)
		hdr.SetNetwork(s.Network)
		hdr.SetStation(s.Station)
		hdr.SetLocation(s.Location)
		hdr.SetChannel(s.Channel)
		hdr.SetStartTime(start)

		rec := make([]byte, RecordLength)
		copy(rec, ms.EncodeRecordHeader(hdr))
		copy(rec[b1000Offset:], ms.EncodeBlocketteHeader(ms.BlocketteHeader{BlocketteType: 1000, NextBlockette: b1001Offset}))
		copy(rec[b1000Offset+ms.BlocketteHeaderSize:], ms.EncodeBlockette1000(ms.Blockette1000{
			Encoding:     uint8(ms.EncodingSTEIM2),
			WordOrder:    uint8(ms.BigEndian),
			RecordLength: recordLengthExp,
		}))
		copy(rec[b1001Offset:], ms.EncodeBlocketteHeader(ms.BlocketteHeader{BlocketteType: 1001}))
		copy(rec[b1001Offset+ms.BlocketteHeaderSize:], ms.EncodeBlockette1001(ms.Blockette1001{
			MicroSec:   int8((start.Nanosecond() / 1000) % 100),
			FrameCount: uint8(frames),
		}))
		copy(rec[dataOffset:], data)

		out = append(out, rec...)
		seq++
		i += n
	}

	return out, seq, nil
}

// rateFactors converts a sample rate into the SEED factor and multiplier.
func rateFactors(sps float64) (int16, int16) {
	if r := math.Round(sps); math.Abs(sps-r) < 1e-9 && r <= math.MaxInt16 {
		return int16(r), 1
	}
	if sps < 1 {
		return -int16(math.Round(1 / sps)), 1
	}
	return int16(math.Round(sps * 100)), -100
}
