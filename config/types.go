package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// Series is one timeframe: its period and the number of candles it needs
// before indicators are usable. Written as ["3m", 20] or {"period": "3m", "lookback": 20}.
type Series struct {
	Period   int64
	Lookback int
}

func (s Series) String() string {
	return fmt.Sprintf("%ds/%d", s.Period, s.Lookback)
}

type seriesObject struct {
	Period   string `json:"period" yaml:"period"`
	Lookback int    `json:"lookback" yaml:"lookback"`
}

func (s *Series) UnmarshalJSON(data []byte) error {
	var tuple []any
	if err := json.Unmarshal(data, &tuple); err == nil {
		return s.fromTuple(tuple)
	}
	var obj seriesObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("series: %w", err)
	}
	return s.fromObject(obj)
}

func (s *Series) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var tuple []any
		if err := node.Decode(&tuple); err != nil {
			return err
		}
		return s.fromTuple(tuple)
	}
	var obj seriesObject
	if err := node.Decode(&obj); err != nil {
		return fmt.Errorf("series: %w", err)
	}
	return s.fromObject(obj)
}

func (s *Series) fromTuple(tuple []any) error {
	if len(tuple) != 2 {
		return errors.New("series: expected [period, lookback]")
	}
	period, ok := tuple[0].(string)
	if !ok {
		return fmt.Errorf("series: period %v is not a string", tuple[0])
	}
	var lookback int
	switch v := tuple[1].(type) {
	case float64:
		lookback = int(v)
	case int:
		lookback = v
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("series: lookback %q: %w", v, err)
		}
		lookback = n
	default:
		return fmt.Errorf("series: lookback %v is not a number", tuple[1])
	}
	return s.fromObject(seriesObject{Period: period, Lookback: lookback})
}

func (s *Series) fromObject(obj seriesObject) error {
	seconds, err := ParsePeriod(obj.Period)
	if err != nil {
		return err
	}
	s.Period = seconds
	s.Lookback = obj.Lookback
	return nil
}

// Duration accepts "10s" style strings or a plain number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON takes a bare number as seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	text := jsonScalar(data)
	if text == nil {
		return nil
	}
	return d.UnmarshalText(text)
}

// Timestamp accepts RFC3339, a bare date or unix seconds.
type Timestamp time.Time

func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

func (t Timestamp) MarshalText() ([]byte, error) {
	if t.IsZero() {
		return []byte{}, nil
	}
	return []byte(t.Time().UTC().Format(time.RFC3339)), nil
}

func (t *Timestamp) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		*t = Timestamp(time.Unix(secs, 0).UTC())
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// UnmarshalJSON takes a bare number as unix seconds.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	text := jsonScalar(data)
	if secs, err := strconv.ParseFloat(string(text), 64); err == nil {
		*t = Timestamp(time.Unix(int64(secs), 0).UTC())
		return nil
	}
	return t.UnmarshalText(text)
}

// jsonScalar unwraps a JSON string; numbers pass through as their literal text.
func jsonScalar(data []byte) []byte {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		return []byte(unquoted)
	}
	return []byte(s)
}
