package registry

import "bytes"

// bytesReader adapts a raw schema document to the io.Reader the jsonschema
// compiler's AddResource expects.
func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
