package inventory

import (
	"bytes"
	"time"
)

// The StationXML subset needed to evaluate instrument responses.

type FDSNStationXML struct {
	SchemaVersion float64       `xml:"schemaVersion,attr"`
	Source        string        `xml:"Source"`
	Sender        string        `xml:"Sender,omitempty"`
	Created       xsdDateTime   `xml:"Created"`
	Network       []NetworkType `xml:"Network"`
}

type BaseNodeType struct {
	Code        string      `xml:"code,attr"`
	StartDate   xsdDateTime `xml:"startDate,attr,omitempty"`
	EndDate     xsdDateTime `xml:"endDate,attr,omitempty"`
	Description string      `xml:"Description,omitempty"`
}

type NetworkType struct {
	BaseNodeType
	Station []StationType `xml:"Station,omitempty"`
}

type StationType struct {
	BaseNodeType
	Latitude  float64       `xml:"Latitude"`
	Longitude float64       `xml:"Longitude"`
	Elevation float64       `xml:"Elevation"`
	Channel   []ChannelType `xml:"Channel,omitempty"`
}

type ChannelType struct {
	BaseNodeType
	LocationCode string        `xml:"locationCode,attr"`
	SampleRate   float64       `xml:"SampleRate,omitempty"`
	Response     *ResponseType `xml:"Response,omitempty"`
}

type ResponseType struct {
	InstrumentSensitivity *SensitivityType    `xml:"InstrumentSensitivity,omitempty"`
	Stage                 []ResponseStageType `xml:"Stage,omitempty"`
}

type GainType struct {
	Value     float64  `xml:"Value,omitempty"`
	Frequency *float64 `xml:"Frequency,omitempty"`
}

type UnitsType struct {
	Name        string `xml:"Name,omitempty"`
	Description string `xml:"Description,omitempty"`
}

type SensitivityType struct {
	GainType
	InputUnits  *UnitsType `xml:"InputUnits,omitempty"`
	OutputUnits *UnitsType `xml:"OutputUnits,omitempty"`
}

type ResponseStageType struct {
	Number     *int            `xml:"number,attr,omitempty"`
	PolesZeros *PolesZerosType `xml:"PolesZeros,omitempty"`
	StageGain  *GainType       `xml:"StageGain,omitempty"`
}

// May be one of LAPLACE (RADIANS/SECOND), LAPLACE (HERTZ), DIGITAL (Z-TRANSFORM)
type PzTransferFunctionType string

const (
	LaplaceRadians PzTransferFunctionType = "LAPLACE (RADIANS/SECOND)"
	LaplaceHertz   PzTransferFunctionType = "LAPLACE (HERTZ)"
)

type PolesZerosType struct {
	InputUnits             *UnitsType             `xml:"InputUnits,omitempty"`
	OutputUnits            *UnitsType             `xml:"OutputUnits,omitempty"`
	PzTransferFunctionType PzTransferFunctionType `xml:"PzTransferFunctionType,omitempty"`
	NormalizationFactor    *float64               `xml:"NormalizationFactor,omitempty"`
	NormalizationFrequency *float64               `xml:"NormalizationFrequency,omitempty"`
	Zero                   []PoleZeroType         `xml:"Zero,omitempty"`
	Pole                   []PoleZeroType         `xml:"Pole,omitempty"`
}

type PoleZeroType struct {
	Number    *int    `xml:"number,attr,omitempty"`
	Real      float64 `xml:"Real"`
	Imaginary float64 `xml:"Imaginary"`
}

type xsdDateTime time.Time

func (t *xsdDateTime) UnmarshalText(text []byte) error {
	return unmarshalTime(text, (*time.Time)(t))
}

func (t xsdDateTime) MarshalText() ([]byte, error) {
	return []byte(time.Time(t).UTC().Format(time.RFC3339Nano)), nil
}

func unmarshalTime(text []byte, t *time.Time) (err error) {
	s := string(bytes.TrimSpace(text))

	*t, err = time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return nil
	}

	// FDSN services commonly omit the zone.
	*t, err = time.Parse("2006-01-02T15:04:05.999999999", s)
	return err
}
