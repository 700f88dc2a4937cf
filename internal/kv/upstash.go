// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

package kv

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// Values written by Set carry this prefix. Counters written by Incr are
// plain decimal strings and are returned as is.
const upstashBinaryPrefix = "b64:"

// maxUpstashResponse caps how much of a reply body is read.
const maxUpstashResponse = 4 << 20

// UpstashOptions configures NewUpstashStore.
type UpstashOptions struct {
	URL   string
	Token string

	// RPS paces outgoing commands; 0 disables pacing.
	RPS float64

	HTTPClient *http.Client
}

// UpstashStore speaks the Upstash Redis REST protocol: each command is a JSON
// array POSTed to the database URL, answered by {"result": ...} or
// {"error": "..."}. The REST API carries strings only, so binary values are
// base64 encoded.
type UpstashStore struct {
	url     string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewUpstashStore builds a client; no request is made until first use.
func NewUpstashStore(opts UpstashOptions) *UpstashStore {
	c := opts.HTTPClient
	if c == nil {
		c = &http.Client{Timeout: 2 * time.Second}
	}
	s := &UpstashStore{
		url:    strings.TrimRight(opts.URL, "/"),
		token:  opts.Token,
		client: c,
	}
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return s
}

// Name implements Named.
func (s *UpstashStore) Name() string { return "upstash" }

type upstashReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// UpstashError is a command level error reported by the server.
type UpstashError struct {
	Status  int
	Message string
}

func (e *UpstashError) Error() string {
	return fmt.Sprintf("upstash: %s (http %d)", e.Message, e.Status)
}

func (s *UpstashStore) do(ctx context.Context, args ...string) (json.RawMessage, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("upstash: encode command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstash: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstashResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %w", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	var reply upstashReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("upstash: decode reply (http %d): %w", resp.StatusCode, err)
	}
	if reply.Error != "" || resp.StatusCode >= http.StatusBadRequest {
		return nil, &UpstashError{Status: resp.StatusCode, Message: reply.Error}
	}
	return reply.Result, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// Get implements Store.
func (s *UpstashStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.do(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, ErrNotFound
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("upstash get %q: %w", key, err)
	}
	if enc, ok := strings.CutPrefix(v, upstashBinaryPrefix); ok {
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("upstash get %q: %w", key, err)
		}
		return b, nil
	}
	return []byte(v), nil
}

// Set implements Store.
func (s *UpstashStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	v := upstashBinaryPrefix + base64.StdEncoding.EncodeToString(value)
	args := []string{"SET", key, v}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	_, err := s.do(ctx, args...)
	return err
}

// Delete implements Store.
func (s *UpstashStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.do(ctx, append([]string{"DEL"}, keys...)...)
	return err
}

// Incr implements Store with the same script as RedisStore, sent through
// EVAL so the expiry is set atomically.
func (s *UpstashStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ms := strconv.FormatInt(max(ttl.Milliseconds(), 0), 10)
	raw, err := s.do(ctx, "EVAL", incrScript, "1", key, ms)
	if err != nil {
		var ue *UpstashError
		if errors.As(err, &ue) && isNotIntegerMsg(ue.Message) {
			return 0, ErrNotCounter
		}
		return 0, err
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("upstash incr %q: %w", key, err)
	}
	return n, nil
}

// Ping implements Store.
func (s *UpstashStore) Ping(ctx context.Context) error {
	_, err := s.do(ctx, "PING")
	return err
}

// Close implements Store.
func (s *UpstashStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
