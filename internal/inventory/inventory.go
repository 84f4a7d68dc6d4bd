// Package inventory is for fetching station metadata and instrument responses from an FDSN station service.
package inventory

import (
	"context"
	"encoding/xml"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/schema"
	"github.com/pkg/errors"
)

// DefaultURL is the Raspberry Shake FDSN station query endpoint.
const DefaultURL = "https://fdsnws.raspberryshakedata.com/fdsnws/station/1/query"

var encoder = schema.NewEncoder()

// Query holds the FDSN station query parameters.
type Query struct {
	Network string `schema:"network"`
	Station string `schema:"station"`
	Level   string `schema:"level"`
	Format  string `schema:"format"`
}

// Inventory is the response metadata for one station.  It is read only once built.
type Inventory struct {
	Network, Station string
	Raw              []byte
	XML              FDSNStationXML

	responses map[string]Response
}

// PolesZeros is an analog transfer function.  When Hertz is true s = i·f, otherwise s = i·2πf.
type PolesZeros struct {
	Hertz bool
	A0    float64
	Zeros []complex128
	Poles []complex128
}

// Response is the instrument response of a channel, counts per InputUnits.
type Response struct {
	Channel     string
	Sensitivity float64
	InputUnits  string
	PolesZeros  PolesZeros
}

// Parse decodes StationXML.
func Parse(b []byte) (*Inventory, error) {
	inv := Inventory{
		Raw:       b,
		responses: make(map[string]Response),
	}

	if err := xml.Unmarshal(b, &inv.XML); err != nil {
		return nil, errors.Wrap(err, "decoding StationXML")
	}

	for _, n := range inv.XML.Network {
		for _, s := range n.Station {
			inv.Network, inv.Station = n.Code, s.Code
			for _, c := range s.Channel {
				if r, ok := channelResponse(c); ok {
					// later epochs replace earlier ones.
					inv.responses[c.Code] = r
				}
			}
		}
	}

	return &inv, nil
}

func channelResponse(c ChannelType) (Response, bool) {
	if c.Response == nil || c.Response.InstrumentSensitivity == nil {
		return Response{}, false
	}

	r := Response{
		Channel:     c.Code,
		Sensitivity: c.Response.InstrumentSensitivity.Value,
		PolesZeros:  PolesZeros{A0: 1},
	}
	if u := c.Response.InstrumentSensitivity.InputUnits; u != nil {
		r.InputUnits = strings.ToUpper(u.Name)
	}

	for _, st := range c.Response.Stage {
		pz := st.PolesZeros
		if pz == nil {
			continue
		}
		r.PolesZeros.Hertz = pz.PzTransferFunctionType == LaplaceHertz
		if pz.NormalizationFactor != nil {
			r.PolesZeros.A0 = *pz.NormalizationFactor
		}
		for _, z := range pz.Zero {
			r.PolesZeros.Zeros = append(r.PolesZeros.Zeros, complex(z.Real, z.Imaginary))
		}
		for _, p := range pz.Pole {
			r.PolesZeros.Poles = append(r.PolesZeros.Poles, complex(p.Real, p.Imaginary))
		}
		break
	}

	return r, r.Sensitivity != 0
}

// Response returns the response for channel.
func (inv *Inventory) Response(channel string) (Response, bool) {
	if inv == nil {
		return Response{}, false
	}
	r, ok := inv.responses[channel]
	return r, ok
}

// Channels returns the channel codes that have a response.
func (inv *Inventory) Channels() []string {
	if inv == nil {
		return nil
	}
	var c []string
	for k := range inv.responses {
		c = append(c, k)
	}
	return c
}

// WriteXML saves the StationXML document to path, creating parent directories.
func (inv *Inventory) WriteXML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, inv.Raw, 0644)
}

// Client queries an FDSN station service.
type Client struct {
	URL   string
	HTTP  *http.Client
	Retry time.Duration
}

// NewClient returns a Client for the Raspberry Shake service with a 10 s timeout that
// retries once after 5 s.
func NewClient() *Client {
	return &Client{
		URL:   DefaultURL,
		HTTP:  &http.Client{Timeout: 10 * time.Second},
		Retry: 5 * time.Second,
	}
}

// Fetch returns the response level inventory for network and station.  A failed request
// is retried once after c.Retry.
func (c *Client) Fetch(ctx context.Context, network, station string) (*Inventory, error) {
	inv, err := c.fetch(ctx, network, station)
	if err == nil {
		return inv, nil
	}

	log.Printf("inventory fetch for %s.%s failed, retrying in %s: %s", network, station, c.Retry, err)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.Retry):
	}

	return c.fetch(ctx, network, station)
}

func (c *Client) fetch(ctx context.Context, network, station string) (*Inventory, error) {
	v := url.Values{}
	if err := encoder.Encode(Query{Network: network, Station: station, Level: "resp", Format: "xml"}, v); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+"?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s (%s)", strings.TrimSpace(string(b)), http.StatusText(res.StatusCode))
	}

	return Parse(b)
}
