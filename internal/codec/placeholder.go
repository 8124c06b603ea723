package codec

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Tag prefixes every ciphertext produced by Placeholder.
const Tag = "FHE-"

// Placeholder is a reversible stand-in for a homomorphic scheme: the tag
// followed by the base64 of the shortest decimal text of the value.
// It provides no confidentiality.
type Placeholder struct{}

// NewPlaceholder returns the placeholder codec.
func NewPlaceholder() Placeholder {
	return Placeholder{}
}

// Encode wraps the shortest decimal text of value. NaN and infinities are
// rejected with ErrNonFinite.
func (Placeholder) Encode(value float64) (string, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "", ErrNonFinite
	}
	text := strconv.FormatFloat(value, 'g', -1, 64)
	return Tag + base64.StdEncoding.EncodeToString([]byte(text)), nil
}

// Decode reverses Encode. Anything Encode could not have produced fails
// with ErrDecode, including other spellings of a valid number.
func (Placeholder) Decode(ciphertext string) (float64, error) {
	payload, ok := strings.CutPrefix(ciphertext, Tag)
	if !ok {
		return 0, fmt.Errorf("%w: missing %q tag", ErrDecode, Tag)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	text := string(raw)
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: non-finite payload", ErrDecode)
	}
	if strconv.FormatFloat(value, 'g', -1, 64) != text {
		return 0, fmt.Errorf("%w: non-canonical payload %q", ErrDecode, text)
	}
	return value, nil
}

// AggregateAverage returns the encoded mean of ciphertexts. The placeholder
// decodes each element to do so; a homomorphic codec would not.
func (p Placeholder) AggregateAverage(ciphertexts []string) (string, error) {
	if len(ciphertexts) == 0 {
		return "", fmt.Errorf("%w: no ciphertexts to average", ErrDecode)
	}
	var sum float64
	for i, ct := range ciphertexts {
		v, err := p.Decode(ct)
		if err != nil {
			return "", fmt.Errorf("element %d: %w", i, err)
		}
		sum += v
	}
	return p.Encode(sum / float64(len(ciphertexts)))
}
