/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * archivemixer
 * This file is part of archivemixer.
 *
 * archivemixer is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * archivemixer is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 */

// Package transport receives the two upstream media subjects over NATS
// JetStream pull consumers. It stands in for the ZMQ PULL-socket pair
// media_queue.c connects to (ipc:///tmp/<prefix>-screencast and
// ipc:///tmp/<prefix>-blobsink): same two logical multipart messages, same
// bounded-poll receive cadence, different wire.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// ScreencastMsg carries one image frame and its producer timestamp.
type ScreencastMsg struct {
	PNGBase64 string  `json:"frame"`
	Timestamp float64 `json:"timestamp"`
}

// BlobsinkMsg carries a subscriber's growing audio file path, its
// timestamp, and the subscriber id that owns it.
type BlobsinkMsg struct {
	Path         string  `json:"path"`
	Timestamp    float64 `json:"timestamp"`
	SubscriberID string  `json:"subscriber_id"`
}

// Config configures the NATS connection and the two subjects to poll.
type Config struct {
	URL               string
	ScreencastSubject string
	BlobsinkSubject   string
	// FetchTimeout bounds each pull-fetch call, playing the same role as
	// the ZMQ_RCVTIMEO 10ms the original transport sets.
	FetchTimeout time.Duration
}

// Client owns the NATS connection and the two pull consumers.
type Client struct {
	cfg  Config
	nc   *nats.Conn
	js   jetstream.JetStream
	scCo jetstream.Consumer
	bsCo jetstream.Consumer
}

// Connect dials NATS and creates (or binds to) durable pull consumers for
// both subjects.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Millisecond
	}

	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("transport: nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("transport: jetstream: %w", err)
	}

	c := &Client{cfg: cfg, nc: nc, js: js}

	c.scCo, err = c.ensureConsumer(ctx, "ARCHIVEMIXER_SCREENCAST", cfg.ScreencastSubject)
	if err != nil {
		nc.Close()
		return nil, err
	}
	c.bsCo, err = c.ensureConsumer(ctx, "ARCHIVEMIXER_BLOBSINK", cfg.BlobsinkSubject)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) ensureConsumer(ctx context.Context, streamName, subject string) (jetstream.Consumer, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subject},
	})
	if err != nil {
		return nil, fmt.Errorf("transport: create stream %s: %w", streamName, err)
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:   streamName + "_CONSUMER",
		AckPolicy: jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: create consumer %s: %w", streamName, err)
	}
	return cons, nil
}

// PollScreencast fetches at most one pending screencast message, blocking
// for at most FetchTimeout. A nil, false result with no error means
// nothing arrived within the timeout window, the ordinary poll-empty case.
func (c *Client) PollScreencast() (*ScreencastMsg, bool, error) {
	return pollOne[ScreencastMsg](c.scCo, c.cfg.FetchTimeout)
}

// PollBlobsink fetches at most one pending blobsink message.
func (c *Client) PollBlobsink() (*BlobsinkMsg, bool, error) {
	return pollOne[BlobsinkMsg](c.bsCo, c.cfg.FetchTimeout)
}

func pollOne[T any](cons jetstream.Consumer, timeout time.Duration) (*T, bool, error) {
	batch, err := cons.Fetch(1, jetstream.FetchMaxWait(timeout))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var out *T
	for msg := range batch.Messages() {
		var decoded T
		if jerr := decodeJSON(msg.Data(), &decoded); jerr != nil {
			log.Printf("transport: malformed message dropped: %v", jerr)
			_ = msg.Ack()
			continue
		}
		_ = msg.Ack()
		out = &decoded
		break
	}
	if err := batch.Error(); err != nil {
		return out, out != nil, err
	}
	return out, out != nil, nil
}

// DecodeFrameBytes decodes a screencast message's base64 PNG payload.
func (m *ScreencastMsg) DecodeFrameBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.PNGBase64)
}

// Close closes the NATS connection.
func (c *Client) Close() {
	c.nc.Close()
}

func decodeJSON[T any](data []byte, out *T) error {
	return json.Unmarshal(data, out)
}
