package actionprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NotionProvider creates a page in a database and reports its id.
//
// Notion has no official Go SDK in the retrieval pack or the wider
// ecosystem worth adopting for one call shape; this is the one action
// provider built directly on net/http, against Notion's public REST API.
type NotionProvider interface {
	CreatePage(ctx context.Context, databaseID, title, content string) (pageID string, err error)
}

const notionAPIBase = "https://api.notion.com/v1"
const notionAPIVersion = "2022-06-28"

// NewNotionProvider returns a real token-backed provider, or a simulated
// one when apiKey is empty.
func NewNotionProvider(apiKey string) NotionProvider {
	if apiKey == "" {
		return simulatedNotionProvider{}
	}
	return &realNotionProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type realNotionProvider struct {
	apiKey string
	client *http.Client
}

func (p *realNotionProvider) CreatePage(ctx context.Context, databaseID, title, content string) (string, error) {
	body := map[string]interface{}{
		"parent": map[string]string{"database_id": databaseID},
		"properties": map[string]interface{}{
			"title": map[string]interface{}{
				"title": []map[string]interface{}{
					{"text": map[string]string{"content": title}},
				},
			},
		},
		"children": []map[string]interface{}{
			{
				"object": "block",
				"type":   "paragraph",
				"paragraph": map[string]interface{}{
					"rich_text": []map[string]interface{}{
						{"text": map[string]string{"content": content}},
					},
				},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("notion: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notionAPIBase+"/pages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("notion: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Notion-Version", notionAPIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("notion: create page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("notion: create page: status %d", resp.StatusCode)
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("notion: decode response: %w", err)
	}
	return parsed.ID, nil
}

// simulatedNotionProvider stands in for act.notion when no NOTION_API_KEY
// is configured.
type simulatedNotionProvider struct{}

func (simulatedNotionProvider) CreatePage(_ context.Context, databaseID, _, _ string) (string, error) {
	return "simulated-page-in-" + databaseID, nil
}
