package output

import "encoding/json"

// JSONFormatter encodes the report's underlying value.
type JSONFormatter struct {
	Indent bool
}

// Format encodes value; doc is unused.
func (f *JSONFormatter) Format(_ Document, value any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
