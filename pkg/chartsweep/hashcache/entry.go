package hashcache

import (
	"bytes"
	"encoding/gob"
)

// formatVersion prefixes every key; bump it when Entry changes shape.
const formatVersion = "v1"

// keySeparator separates the version prefix from the path.
const keySeparator = '\x00'

// Entry is the cached digest of one file, valid while size and mtime match.
type Entry struct {
	Size  int64
	Mtime int64 // UnixNano
	Hash  string
}

// Encode serializes the entry with gob.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into the entry.
func (e *Entry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

func makeKey(path string) []byte {
	return []byte(formatVersion + string(keySeparator) + path)
}

func keyPath(key []byte) string {
	if i := bytes.IndexByte(key, keySeparator); i >= 0 {
		return string(key[i+1:])
	}
	return string(key)
}

func keyPrefix() []byte {
	return []byte(formatVersion + string(keySeparator))
}
