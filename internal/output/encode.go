package output

import (
	"bytes"
	"encoding/json"
)

// marshalReport returns the indented json of r. We cannot use json.MarshalIndent
// because it replaces certain html characters in urls and error messages with
// the corresponding unicode escapes.
func marshalReport(r *Report) ([]byte, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(r); err != nil {
		return nil, err
	}
	var indentBuffer bytes.Buffer
	if err := json.Indent(&indentBuffer, buffer.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return indentBuffer.Bytes(), nil
}
