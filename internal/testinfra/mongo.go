// Highscore - Casual Game Score and Leaderboard Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/highscore

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultMongoImage is the MongoDB image used by integration tests.
	DefaultMongoImage = "mongo:7.0"

	// DefaultMongoPort is the mongod port inside the container.
	DefaultMongoPort = "27017"
)

// MongoContainer is a single-node replica set, so multi-document
// transactions are available.
type MongoContainer struct {
	testcontainers.Container
	URI string
}

// NewMongoContainer starts mongod with --replSet and initiates the set.
func NewMongoContainer(ctx context.Context) (*MongoContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultMongoImage,
		ExposedPorts: []string{DefaultMongoPort + "/tcp"},
		Cmd:          []string{"mongod", "--replSet", "rs0", "--bind_ip_all"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(DefaultMongoPort+"/tcp"),
			wait.ForLog("Waiting for connections"),
		).WithStartupTimeout(90 * time.Second),
	}

	container, addr, err := startContainer(ctx, req, DefaultMongoPort)
	if err != nil {
		return nil, err
	}

	if err := initiateReplicaSet(ctx, container); err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, err
	}

	return &MongoContainer{
		Container: container,
		URI:       fmt.Sprintf("mongodb://%s/?directConnection=true", addr),
	}, nil
}

// initiateReplicaSet runs rs.initiate and waits for the node to become primary.
func initiateReplicaSet(ctx context.Context, container testcontainers.Container) error {
	script := `try { rs.status() } catch (e) { rs.initiate({_id: "rs0", members: [{_id: 0, host: "localhost:27017"}]}) }`
	code, out, err := container.Exec(ctx, []string{"mongosh", "--quiet", "--eval", script})
	if err != nil {
		return fmt.Errorf("exec rs.initiate: %w", err)
	}
	if code != 0 {
		msg, _ := io.ReadAll(out)
		return fmt.Errorf("rs.initiate exited %d: %s", code, msg)
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		code, out, err := container.Exec(ctx, []string{"mongosh", "--quiet", "--eval", "db.hello().isWritablePrimary"})
		if err == nil && code == 0 {
			b, _ := io.ReadAll(out)
			if strings.Contains(string(b), "true") {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("replica set did not elect a primary")
}
