package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tazhate/taskcal/internal/domain"
)

// ListClients returns CRM clients
func (c *Client) ListClients(ctx context.Context) ([]domain.Client, error) {
	var clients []domain.Client
	if err := c.getList(ctx, "/clients/", nil, &clients); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

// ListAffairs returns CRM affaires, optionally only those of one client.
func (c *Client) ListAffairs(ctx context.Context, clientID *int64) ([]domain.Affair, error) {
	var q url.Values
	if clientID != nil {
		q = url.Values{"client_id": {strconv.FormatInt(*clientID, 10)}}
	}

	var affairs []domain.Affair
	if err := c.getList(ctx, "/affaires/", q, &affairs); err != nil {
		return nil, fmt.Errorf("list affaires: %w", err)
	}
	return affairs, nil
}
