package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/operator-finder/internal/ai"
)

const (
	unknownValue  = "Unknown"
	matchScoreKey = "MatchScore"
	errMissingKey = "missing " + matchScoreKey
)

var identityKeys = []string{"CandidateName", "CurrentTitle", "CurrentCompany"}

// ParseResponse turns a raw model answer into a CandidateScore. The answer may
// be wrapped in a markdown code fence. MatchScore is mandatory and must be a
// finite number or a numeric string.
func ParseResponse(raw string) (*ai.CandidateScore, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("decode json: %w", err)}
	}
	if data == nil {
		return nil, &ParseError{Raw: raw, Err: errors.New("response is not a json object")}
	}

	// true or false is not a name, so let those fields fall back to Unknown.
	for key, value := range data {
		if _, ok := value.(bool); ok && isIdentityKey(key) {
			delete(data, key)
		}
	}

	var (
		score ai.CandidateScore
		md    mapstructure.Metadata
	)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       textHook,
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           &score,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(data); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	if slices.Contains(md.Unset, matchScoreKey) || data[matchScoreKey] == nil {
		return nil, &ParseError{Raw: raw, Err: errors.New(errMissingKey)}
	}
	if math.IsNaN(score.MatchScore) || math.IsInf(score.MatchScore, 0) {
		return nil, &ParseError{Raw: raw, Err: fmt.Errorf("%s is not finite", matchScoreKey)}
	}

	applyDefaults(&score)

	return &score, nil
}

func isIdentityKey(key string) bool {
	for _, k := range identityKeys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func applyDefaults(score *ai.CandidateScore) {
	for _, field := range []*string{&score.CandidateName, &score.CurrentTitle, &score.CurrentCompany} {
		*field = strings.TrimSpace(*field)
		if *field == "" {
			*field = unknownValue
		}
	}
	for _, field := range []*string{
		&score.IndustryExperience,
		&score.LeadershipExperience,
		&score.TrackRecordOfSuccess,
		&score.PrivateEquityExperience,
		&score.FunctionalExpertise,
		&score.CompanySizeExperience,
		&score.TenureStability,
		&score.Reasoning,
	} {
		*field = strings.TrimSpace(*field)
	}
}

// textHook renders structured values destined for string fields as JSON,
// booleans as true or false, and refuses booleans as scores.
func textHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.String:
		switch from.Kind() {
		case reflect.Map, reflect.Slice:
			encoded, err := json.Marshal(data)
			if err != nil {
				return nil, err
			}
			return string(encoded), nil
		case reflect.Bool:
			return strconv.FormatBool(reflect.ValueOf(data).Bool()), nil
		}
	case reflect.Float64:
		if from.Kind() == reflect.Bool {
			return nil, fmt.Errorf("%s must be a number, got %v", matchScoreKey, data)
		}
		if s, ok := data.(string); ok {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil, errors.New(errMissingKey)
			}
			return s, nil
		}
	}
	return data, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```JSON")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
