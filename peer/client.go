//
// Tencent is pleased to support the open source community by making trpc-toolmesh-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-toolmesh-go is licensed under the Apache License Version 2.0.
//
//

package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-a2a-go/client"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"trpc.group/trpc-go/trpc-toolmesh-go/log"
)

// messageSender delivers one message to a peer and returns the protocol
// result union.
type messageSender interface {
	send(ctx context.Context, message protocol.Message) (any, error)
}

// a2aSender is the production sender backed by the A2A client.
type a2aSender struct {
	client *client.A2AClient
}

func (s *a2aSender) send(ctx context.Context, message protocol.Message) (any, error) {
	result, err := s.client.SendMessage(ctx, protocol.SendMessageParams{Message: message})
	if err != nil {
		return nil, err
	}
	return result.Result, nil
}

type cardEntry struct {
	card    *PeerAgentCard
	fetched time.Time
}

// Client discovers peer agents and delivers messages to them. Discovered
// cards are cached per URL.
type Client struct {
	httpClient *http.Client
	cardTTL    time.Duration

	mu    sync.Mutex
	cards map[string]cardEntry

	newSender func(url string) (messageSender, error)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient injects the HTTP client used for card fetches.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithCardTTL bounds how long a discovered card is reused. Zero keeps
// cards for the process lifetime.
func WithCardTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cardTTL = ttl
	}
}

// NewClient creates a peer client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		cards:      make(map[string]cardEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newSender == nil {
		c.newSender = func(url string) (messageSender, error) {
			a2aClient, err := client.NewA2AClient(url)
			if err != nil {
				return nil, err
			}
			return &a2aSender{client: a2aClient}, nil
		}
	}
	return c
}

// DiscoverAgent fetches the agent card published at the URL. Discovery is
// best effort: any failure logs a warning and returns nil.
func (c *Client) DiscoverAgent(ctx context.Context, rawURL string) *PeerAgentCard {
	url := SanitizeURL(rawURL)
	if url == "" {
		log.Warnf("peer: empty agent url after sanitization of %q", rawURL)
		return nil
	}

	c.mu.Lock()
	if entry, ok := c.cards[url]; ok {
		if c.cardTTL == 0 || time.Since(entry.fetched) < c.cardTTL {
			c.mu.Unlock()
			return entry.card
		}
		delete(c.cards, url)
	}
	c.mu.Unlock()

	card, err := c.fetchCard(ctx, url)
	if err != nil {
		log.Warnf("peer: discover agent at %s failed: %v", url, err)
		return nil
	}
	if card.URL == "" {
		card.URL = url
	}

	c.mu.Lock()
	c.cards[url] = cardEntry{card: card, fetched: time.Now()}
	c.mu.Unlock()

	log.Infof("peer: discovered agent %s at %s with %d skills", card.Name, url, len(card.Skills))
	return card
}

func (c *Client) fetchCard(ctx context.Context, url string) (*PeerAgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+WellKnownPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build card request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch card: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("card endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read card: %w", err)
	}
	var card PeerAgentCard
	if err := json.Unmarshal(body, &card); err != nil {
		return nil, fmt.Errorf("parse card: %w", err)
	}
	if card.Name == "" {
		return nil, fmt.Errorf("card has no agent name")
	}
	return &card, nil
}

// sender returns a message sender for the agent URL.
func (c *Client) sender(url string) (messageSender, error) {
	return c.newSender(url)
}
