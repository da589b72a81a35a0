package dispatch

import "encoding/json"

// Fields redacted from connector-event bodies before persistence.
var sensitiveFields = map[string]struct{}{
	"number":        {},
	"pan":           {},
	"cvc":           {},
	"cvv":           {},
	"expiry_month":  {},
	"expiry_year":   {},
	"decrypted_pan": {},
}

// maskBody replaces sensitive top-level and nested JSON string fields with
// "***". Non-JSON bodies are withheld entirely rather than risk leaking PAN
// data into the event log.
func maskBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "<non-json body withheld>"
	}
	masked := maskValue(parsed)
	out, err := json.Marshal(masked)
	if err != nil {
		return "<unmaskable body withheld>"
	}
	return string(out)
}

func maskValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			if _, sensitive := sensitiveFields[k]; sensitive {
				val[k] = "***"
				continue
			}
			val[k] = maskValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = maskValue(inner)
		}
		return val
	default:
		return v
	}
}
