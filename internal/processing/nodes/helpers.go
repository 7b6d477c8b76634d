// Package nodes provides the concrete processing node implementations and
// the registry that builds graphs from configuration.
package nodes

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/sonoptix/photoacoustic-go/internal/logging"
)

const componentNodes = "processing"

func nowMicros() uint64 {
	return uint64(time.Now().UnixMicro())
}

func nodeLogger(nodeType, id string) *slog.Logger {
	logger := logging.ForService("processing")
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", nodeType, "node_id", id)
}

// Parameter extraction helpers. YAML and JSON decoding produce assorted
// numeric types; these normalize them.

func paramFloat(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return def
	}
}

func paramInt(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func paramString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return def
}

func paramBool(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func hasParam(params map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := params[k]; ok {
			return true
		}
	}
	return false
}

func paramFloatStrict(params map[string]any, key string) (float64, bool, error) {
	v, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case uint64:
		return float64(n), true, nil
	default:
		return 0, false, fmt.Errorf("parameter %q must be numeric, got %T", key, v)
	}
}
