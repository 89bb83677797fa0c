// Package scoresig guards against running a corrupted or tampered score
// file: it appends and verifies a BLAKE2b digest trailer over the raw
// score bytes before the decoder ever sees them. The score format itself
// has no room for a digest, so this lives as a separate wire wrapper a
// caller can opt into via fuseplayer.Config.RequireSignedScore.
package scoresig

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ErrInvalidSignature is returned by Verify when the trailing digest does
// not match the preceding score bytes.
var ErrInvalidSignature = errors.New("scoresig: digest mismatch")

// ErrTooShort is returned by Verify when buf is too short to hold a
// digest trailer at all.
var ErrTooShort = errors.New("scoresig: buffer shorter than digest")

const digestSize = blake2b.Size256

// Sign appends a BLAKE2b-256 digest of scoreBytes to scoreBytes, producing
// a buffer a score-authoring tool would write to disk in place of the bare
// score.
func Sign(scoreBytes []byte) ([]byte, error) {
	sum := blake2b.Sum256(scoreBytes)
	return append(append([]byte(nil), scoreBytes...), sum[:]...), nil
}

// Verify checks that the last digestSize bytes of signed are the
// BLAKE2b-256 digest of the preceding bytes, and returns the score bytes
// with the trailer stripped off.
func Verify(signed []byte) ([]byte, error) {
	if len(signed) < digestSize {
		return nil, ErrTooShort
	}
	split := len(signed) - digestSize
	scoreBytes, trailer := signed[:split], signed[split:]
	sum := blake2b.Sum256(scoreBytes)
	if !bytes.Equal(sum[:], trailer) {
		return nil, fmt.Errorf("%w", ErrInvalidSignature)
	}
	return scoreBytes, nil
}
