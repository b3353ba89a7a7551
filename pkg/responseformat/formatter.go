package responseformat

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// Supported values of the format query parameter
const (
	FormatJSON    = "json"
	FormatMsgPack = "msgpack"
	FormatCSV     = "csv"
)

// Tabular is implemented by responses that can be rendered as CSV
type Tabular interface {
	Header() []string
	Rows() [][]string
}

// Formatter handles encoding and writing responses in JSON, MessagePack or CSV format
type Formatter struct {
	enableCORS bool
}

// NewFormatter creates a new response formatter
func NewFormatter(enableCORS bool) *Formatter {
	return &Formatter{enableCORS: enableCORS}
}

// Format returns the requested format, JSON unless format=msgpack or
// format=csv is given
func Format(req *http.Request) string {
	switch f := req.URL.Query().Get("format"); f {
	case FormatMsgPack, FormatCSV:
		return f
	}
	return FormatJSON
}

// WriteResponse writes data with the given status in the format the request
// asks for. CSV falls back to JSON for data that is not Tabular.
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, status int, data any, headers map[string]string) error {
	// Set any provided headers first
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	if f.enableCORS {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}

	switch Format(req) {
	case FormatMsgPack:
		return f.writeMsgPack(w, status, data)
	case FormatCSV:
		if t, ok := data.(Tabular); ok {
			return f.writeCSV(w, status, t)
		}
	}
	return f.writeJSON(w, status, data)
}

func (f *Formatter) writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func (f *Formatter) writeMsgPack(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/x-msgpack")
	w.WriteHeader(status)
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}

func (f *Formatter) writeCSV(w http.ResponseWriter, status int, t Tabular) error {
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(status)
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := cw.WriteAll(t.Rows()); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}
