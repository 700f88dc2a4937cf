// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package cache

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Every tier 2 payload starts with a two byte marker so Get can always tell
// how to reverse it.
var (
	rawMarker  = []byte("r:")
	zstdMarker = []byte("z:")
)

// ErrCorruptPayload is returned for tier 2 values without a known marker or
// that fail to decompress.
var ErrCorruptPayload = errors.New("cache: corrupt payload")

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// codecs returns the shared zstd encoder and decoder. EncodeAll and
// DecodeAll are safe for concurrent use.
func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return zstdEnc, zstdDec, zstdErr
}

// encodePayload wraps b for tier 2. Payloads larger than threshold are zstd
// compressed and base64 encoded, unless that does not make them smaller.
// A threshold of zero disables compression.
func encodePayload(b []byte, threshold int) (out []byte, compressed bool) {
	if threshold > 0 && len(b) > threshold {
		if enc, _, err := codecs(); err == nil {
			z := enc.EncodeAll(b, nil)
			n := base64.StdEncoding.EncodedLen(len(z))
			if n < len(b) {
				out = make([]byte, len(zstdMarker)+n)
				copy(out, zstdMarker)
				base64.StdEncoding.Encode(out[len(zstdMarker):], z)
				return out, true
			}
		}
	}
	out = make([]byte, len(rawMarker)+len(b))
	copy(out, rawMarker)
	copy(out[len(rawMarker):], b)
	return out, false
}

// decodePayload reverses encodePayload.
func decodePayload(b []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(b, rawMarker):
		return b[len(rawMarker):], nil
	case bytes.HasPrefix(b, zstdMarker):
		enc := b[len(zstdMarker):]
		z := make([]byte, base64.StdEncoding.DecodedLen(len(enc)))
		n, err := base64.StdEncoding.Decode(z, enc)
		if err != nil {
			return nil, fmt.Errorf("%w: base64: %w", ErrCorruptPayload, err)
		}
		_, dec, err := codecs()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptPayload, err)
		}
		out, err := dec.DecodeAll(z[:n], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrCorruptPayload, err)
		}
		return out, nil
	default:
		return nil, ErrCorruptPayload
	}
}
