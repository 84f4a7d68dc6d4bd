package mseed

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DayPath returns <dir>/data/<net>.<sta>.<loc>.<cha>.D.<YYYY>.<DOY> for the UTC day of t.
func DayPath(dir, network, station, location, channel string, t time.Time) string {
	t = t.UTC()
	return filepath.Join(dir, "data", fmt.Sprintf("%s.%s.%s.%s.D.%04d.%03d", network, station, location, channel, t.Year(), t.YearDay()))
}

// Day returns midnight UTC at the start of t's day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Append adds records to the file at path, creating it and its directory if needed.
func Append(path string, records []byte) error {
	if len(records) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	if _, err := f.Write(records); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
