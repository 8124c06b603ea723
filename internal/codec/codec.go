// Package codec turns numeric test parameters into opaque ciphertext strings.
//
// Codec is the capability boundary a homomorphic scheme plugs into. An
// implementation must satisfy:
//   - Decode(Encode(v)) == v for every finite v.
//   - Decode fails with ErrDecode for anything Encode could not have produced.
//   - AggregateAverage returns a ciphertext of the arithmetic mean of its
//     inputs. A real scheme computes it without materializing plaintext;
//     callers must not rely on the Placeholder behavior of decoding first.
package codec

// Codec encodes, decodes and aggregates ciphertexts.
type Codec interface {
	Encode(value float64) (string, error)
	Decode(ciphertext string) (float64, error)
	AggregateAverage(ciphertexts []string) (string, error)
}
