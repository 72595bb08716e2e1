package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/neo/interview_agent/internal/types"
)

// Defaults applied by Parse when a field is absent
const (
	DefaultTemperature     = 0.8
	DefaultMaxOutputTokens = 2048
	DefaultModalities      = "audio_only"
	unboundedTokens        = "inf"
)

// ErrInvalidNumber is wrapped by ParseError when a numeric field holds text
var ErrInvalidNumber = errors.New("invalid numeric value")

// ErrTokenLimitRange is wrapped by ParseError when a token limit is
// negative or does not fit in an int32
var ErrTokenLimitRange = errors.New("token limit out of range")

// ParseError reports the field that could not be converted
type ParseError struct {
	Field string
	Value interface{}
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("session config: field %s: %v: %v", e.Field, e.Err, e.Value)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// TokenLimit is a max-output-token count or "unbounded"
type TokenLimit struct {
	Value     int
	Unbounded bool
}

// Limit returns the count and whether a limit applies
func (t TokenLimit) Limit() (int, bool) {
	return t.Value, !t.Unbounded
}

func (t TokenLimit) String() string {
	if t.Unbounded {
		return unboundedTokens
	}
	return strconv.Itoa(t.Value)
}

// MarshalJSON encodes unbounded limits as "inf"
func (t TokenLimit) MarshalJSON() ([]byte, error) {
	if t.Unbounded {
		return json.Marshal(unboundedTokens)
	}
	return json.Marshal(t.Value)
}

// SessionConfig is the typed form of a participant's configuration payload
type SessionConfig struct {
	APIKey           string           `json:"-"`
	Instructions     string           `json:"instructions"`
	Voice            types.Voice      `json:"voice"`
	Temperature      float64          `json:"temperature"`
	MaxOutputTokens  TokenLimit       `json:"max_output_tokens"`
	Modalities       types.Modalities `json:"modalities"`
	PresencePenalty  float64          `json:"presence_penalty"`
	FrequencyPenalty float64          `json:"frequency_penalty"`
}

// DefaultSessionConfig returns the config an empty payload parses to
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Voice:           types.VoiceDefault,
		Temperature:     DefaultTemperature,
		MaxOutputTokens: TokenLimit{Value: DefaultMaxOutputTokens},
		Modalities:      types.ParseModalities(DefaultModalities),
	}
}

// ParseJSON decodes a JSON object and parses it
func ParseJSON(data []byte) (SessionConfig, error) {
	payload := map[string]interface{}{}
	if len(strings.TrimSpace(string(data))) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(data)))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return SessionConfig{}, fmt.Errorf("session config: invalid JSON: %w", err)
		}
	}
	return Parse(payload)
}

// Parse maps an untyped payload to a SessionConfig. Every field has a
// default; the only failure is text in a numeric field.
func Parse(data map[string]interface{}) (SessionConfig, error) {
	cfg := DefaultSessionConfig()
	var err error

	cfg.APIKey = stringField(data, "gemini_api_key")
	cfg.Instructions = stringField(data, "instructions")

	if v, parseErr := types.ParseVoice(stringField(data, "voice")); parseErr == nil {
		cfg.Voice = v
	}

	if cfg.Temperature, err = floatField(data, "temperature", DefaultTemperature); err != nil {
		return SessionConfig{}, err
	}
	if cfg.MaxOutputTokens, err = tokenField(data, "max_output_tokens"); err != nil {
		return SessionConfig{}, err
	}
	if m, ok := data["modalities"].(string); ok {
		cfg.Modalities = types.ParseModalities(m)
	}
	if cfg.PresencePenalty, err = floatField(data, "presence_penalty", 0); err != nil {
		return SessionConfig{}, err
	}
	if cfg.FrequencyPenalty, err = floatField(data, "frequency_penalty", 0); err != nil {
		return SessionConfig{}, err
	}

	return cfg, nil
}

// Equal compares every field except the API key
func (c SessionConfig) Equal(other SessionConfig) bool {
	return len(c.Diff(other)) == 0
}

// Diff names the fields that differ, ignoring the API key
func (c SessionConfig) Diff(other SessionConfig) []string {
	var changed []string
	if c.Instructions != other.Instructions {
		changed = append(changed, "instructions")
	}
	if c.Voice != other.Voice {
		changed = append(changed, "voice")
	}
	if c.Temperature != other.Temperature {
		changed = append(changed, "temperature")
	}
	if c.MaxOutputTokens != other.MaxOutputTokens {
		changed = append(changed, "max_output_tokens")
	}
	if !c.Modalities.Equal(other.Modalities) {
		changed = append(changed, "modalities")
	}
	if c.PresencePenalty != other.PresencePenalty {
		changed = append(changed, "presence_penalty")
	}
	if c.FrequencyPenalty != other.FrequencyPenalty {
		changed = append(changed, "frequency_penalty")
	}
	return changed
}

// Redacted returns the loggable form of the config, without the API key
func (c SessionConfig) Redacted() map[string]interface{} {
	return map[string]interface{}{
		"instructions":      c.Instructions,
		"voice":             c.Voice.String(),
		"temperature":       c.Temperature,
		"max_output_tokens": c.MaxOutputTokens.String(),
		"modalities":        c.Modalities.Strings(),
		"presence_penalty":  c.PresencePenalty,
		"frequency_penalty": c.FrequencyPenalty,
	}
}

func stringField(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func floatField(data map[string]interface{}, key string, def float64) (float64, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return def, nil
	}
	f, err := toFloat(raw)
	if err != nil {
		return 0, &ParseError{Field: key, Value: raw, Err: ErrInvalidNumber}
	}
	return f, nil
}

func tokenField(data map[string]interface{}, key string) (TokenLimit, error) {
	raw := data[key]
	if s, ok := raw.(string); ok && s == unboundedTokens {
		return TokenLimit{Unbounded: true}, nil
	}
	if isZeroValue(raw) {
		return TokenLimit{Value: DefaultMaxOutputTokens}, nil
	}

	var f float64
	switch v := raw.(type) {
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return TokenLimit{}, &ParseError{Field: key, Value: raw, Err: ErrInvalidNumber}
		}
		f = float64(i)
	default:
		var err error
		f, err = toFloat(raw)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return TokenLimit{}, &ParseError{Field: key, Value: raw, Err: ErrInvalidNumber}
		}
	}

	if f == 0 {
		return TokenLimit{Value: DefaultMaxOutputTokens}, nil
	}
	if f < 1 || f > math.MaxInt32 {
		return TokenLimit{}, &ParseError{Field: key, Value: raw, Err: ErrTokenLimitRange}
	}
	return TokenLimit{Value: int(f)}, nil
}

// isZeroValue mirrors the falsy values that select the default token limit
func isZeroValue(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 0
	case float64:
		return x == 0
	case int:
		return x == 0
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
