package vectorstore

import (
	"fmt"
	"unicode/utf8"
)

// Namespace derives the per-document namespace from a file key by dropping
// every non-ASCII byte. Two keys that differ only in non-ASCII characters
// share a namespace.
func Namespace(fileKey string) (string, error) {
	b := make([]byte, 0, len(fileKey))
	for i := 0; i < len(fileKey); i++ {
		if fileKey[i] < utf8.RuneSelf {
			b = append(b, fileKey[i])
		}
	}
	if len(b) == 0 {
		return "", fmt.Errorf("%w: file key %q has no ASCII characters", ErrInvalidNamespace, fileKey)
	}
	return string(b), nil
}
