package output

import (
	"bytes"
	"encoding/json"
)

// JSONFormatter writes r as one indented JSON document.
type JSONFormatter struct{}

// Format writes r to w.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)
