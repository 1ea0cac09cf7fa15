package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// CatalogClient looks up games in the daily games catalog service.
type CatalogClient struct {
	*BaseClient
}

func NewCatalogClient(baseURL, apiKey string) *CatalogClient {
	client := &CatalogClient{
		BaseClient: NewBaseClient(strings.TrimRight(baseURL, "/")),
	}
	if apiKey != "" {
		client.SetHeader("X-Api-Key", apiKey)
	}
	return client
}

// Game is a catalog entry.
type Game struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

type GamesResponse struct {
	Games []Game `json:"games"`
}

// GetGames fetches the catalog entries for ids. Unknown ids are simply absent
// from the result.
func (c *CatalogClient) GetGames(ctx context.Context, ids []string) ([]Game, error) {
	query := url.Values{"ids": {strings.Join(ids, ",")}}
	body, err := c.Get(ctx, "/api/games?"+query.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to get games: %w", err)
	}

	var response GamesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return response.Games, nil
}

// KnownGames reports which of ids exist in the catalog and are playable.
func (c *CatalogClient) KnownGames(ctx context.Context, ids []string) (map[string]bool, error) {
	games, err := c.GetGames(ctx, ids)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(games))
	for _, g := range games {
		if g.Active {
			known[g.ID] = true
		}
	}
	return known, nil
}
