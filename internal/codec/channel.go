package codec

import (
	"sort"
	"strings"
)

// Class is the unit class of a channel, used to route deconvolution.
type Class int

const (
	ClassUnknown Class = iota
	ClassVelocity
	ClassAcceleration
	ClassPressure
)

func (c Class) String() string {
	switch c {
	case ClassVelocity:
		return "VEL"
	case ClassAcceleration:
		return "ACC"
	case ClassPressure:
		return "PRESSURE"
	default:
		return "UNKNOWN"
	}
}

// Channels is the closed channel set in canonical order:
// geophone before accelerometer before infrasound.
var Channels = []string{"SHZ", "EHZ", "EHN", "EHE", "ENZ", "ENN", "ENE", "HDF"}

// ClassOf returns the unit class of a channel tag.
func ClassOf(channel string) Class {
	switch channel {
	case "SHZ", "EHZ", "EHN", "EHE":
		return ClassVelocity
	case "ENZ", "ENN", "ENE":
		return ClassAcceleration
	case "HDF":
		return ClassPressure
	default:
		return ClassUnknown
	}
}

// Canonical deduplicates channels and sorts them into the canonical order.
// Unknown tags sort last, alphabetically.
func Canonical(channels []string) []string {
	seen := make(map[string]bool)
	var out []string

	for _, c := range channels {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}

	rank := func(c string) int {
		for i, k := range Channels {
			if k == c {
				return i
			}
		}
		return len(Channels)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})

	return out
}

// Match reports whether channel matches the filter suffix, e.g. HZ matches SHZ and EHZ.
// An empty filter or "all" matches everything.
func Match(filter, channel string) bool {
	filter = strings.ToUpper(strings.TrimSpace(filter))
	if filter == "" || filter == "ALL" {
		return true
	}
	return strings.HasSuffix(channel, filter)
}

// Select returns the first channel from channels that matches filter.
func Select(filter string, channels []string) (string, bool) {
	for _, c := range channels {
		if Match(filter, c) {
			return c, true
		}
	}
	return "", false
}
