// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package cache

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts cached values to and from bytes.
type Codec[V any] interface {
	Marshal(v V) ([]byte, error)
	Unmarshal(b []byte) (V, error)
	Name() string
}

// JSONCodec encodes values with goccy/go-json.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Marshal(v V) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec[V]) Unmarshal(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

func (JSONCodec[V]) Name() string { return "json" }

// MsgpackCodec encodes values as MessagePack. It is smaller than JSON for
// numeric heavy payloads such as rankings.
type MsgpackCodec[V any] struct{}

func (MsgpackCodec[V]) Marshal(v V) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgpackCodec[V]) Unmarshal(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}

func (MsgpackCodec[V]) Name() string { return "msgpack" }

// CodecFor returns the codec named by config (json or msgpack).
func CodecFor[V any](name string) (Codec[V], error) {
	switch name {
	case "", "json":
		return JSONCodec[V]{}, nil
	case "msgpack":
		return MsgpackCodec[V]{}, nil
	default:
		return nil, fmt.Errorf("cache: unknown codec %q", name)
	}
}
