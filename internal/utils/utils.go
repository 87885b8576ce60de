package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

var Log = logrus.New()

func SetLogLevel(level string) error {
	// We are not using logrus' trace and panic levels
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(log.DebugLevel)
	case "info":
		Log.SetLevel(log.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(log.WarnLevel)
	case "error":
		Log.SetLevel(log.ErrorLevel)
	case "fatal":
		Log.SetLevel(log.FatalLevel)
	default:
		return fmt.Errorf("bad log level %q", level)
	}
	return nil
}

// ParseAssignments parses "name=value" pairs such as "protein=18.5" into a
// map. Later pairs override earlier ones.
func ParseAssignments(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		i := strings.LastIndex(p, "=")
		if i < 0 {
			return nil, fmt.Errorf("%q: expected name=value", p)
		}
		name := strings.TrimSpace(p[:i])
		if name == "" {
			return nil, fmt.Errorf("%q: empty name", p)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(p[i+1:]), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%q: value is not a number", p)
		}
		out[name] = v
	}
	return out, nil
}
