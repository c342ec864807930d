package lifecycle

import (
	"encoding/json"
	"fmt"
	"strconv"

	"mpesagw/internal/daraja"
)

// Pair is one name/value entry from a callback list. STK callbacks carry
// Name/Value items, disbursement results Key/Value parameters; both flows
// share the one extraction path below.
type Pair struct {
	Name  string
	Value any
}

func itemPairs(items []daraja.Item) []Pair {
	out := make([]Pair, 0, len(items))
	for _, it := range items {
		out = append(out, Pair{Name: it.Name, Value: it.Value})
	}
	return out
}

func paramPairs(params []daraja.ResultParameter) []Pair {
	out := make([]Pair, 0, len(params))
	for _, p := range params {
		out = append(out, Pair{Name: p.Key, Value: p.Value})
	}
	return out
}

// extract scans pairs for the wanted names and returns the values found.
func extract(pairs []Pair, wanted ...string) map[string]any {
	want := make(map[string]struct{}, len(wanted))
	for _, w := range wanted {
		want[w] = struct{}{}
	}
	out := make(map[string]any)
	for _, p := range pairs {
		if _, ok := want[p.Name]; ok {
			out[p.Name] = p.Value
		}
	}
	return out
}

// asString renders a callback value as a string. Phone numbers arrive as
// JSON numbers in production and strings in some sandboxes.
func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%.0f", x)
	case json.Number:
		return x.String()
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// asAmount coerces a callback amount to whole shillings. Fractional values
// are truncated here: by callback time the money has already moved, so this
// mirrors what the provider settled rather than validating caller input.
func asAmount(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}
