package nodehandler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/lyzr/dagrunner/internal/domain"
	"github.com/lyzr/dagrunner/internal/security"
)

func handleIngestPDF(ctx context.Context, deps *Dependencies, task Task) (Result, error) {
	fileID, ok := configString(task.Config, "file")
	if !ok {
		fileID, ok = configString(task.Config, "uploaded_file_id")
	}
	if !ok {
		return Result{}, fmt.Errorf("ingest.pdf: no file")
	}

	file, err := deps.UploadedFiles.GetByID(ctx, fileID)
	if err != nil {
		return Result{}, fmt.Errorf("ingest.pdf: no file: %w", err)
	}

	f, r, err := pdf.Open(file.StorageRef)
	if err != nil {
		return Result{}, fmt.Errorf("ingest.pdf: corrupt pdf: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	reader, err := r.GetPlainText()
	if err != nil {
		return Result{}, fmt.Errorf("ingest.pdf: corrupt pdf: %w", err)
	}
	if _, err := buf.ReadFrom(reader); err != nil {
		return Result{}, fmt.Errorf("ingest.pdf: corrupt pdf: %w", err)
	}

	content := buf.String()
	doc := &domain.Document{
		ID:        uuid.New().String(),
		Type:      domain.DocumentPDF,
		Content:   content,
		Metadata:  map[string]interface{}{"source_file_id": fileID},
		CreatedAt: time.Now(),
	}
	if err := deps.Documents.Create(ctx, doc); err != nil {
		return Result{}, fmt.Errorf("ingest.pdf: persist document: %w", err)
	}

	return Result{Outputs: map[string]interface{}{
		"document_id":     doc.ID,
		"content":         content,
		"pages_processed": r.NumPage(),
	}}, nil
}

func handleIngestURL(ctx context.Context, deps *Dependencies, task Task) (Result, error) {
	raw, ok := configString(task.Config, "url")
	if !ok {
		return Result{}, fmt.Errorf("ingest.url: no url configured")
	}

	u, err := security.ValidateFetchURL(ctx, raw)
	if err != nil {
		return Result{}, fmt.Errorf("ingest.url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("ingest.url: build request: %w", err)
	}
	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("ingest.url: network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("ingest.url: non-2xx status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("ingest.url: read body: %w", err)
	}

	content := stripHTML(body)
	doc := &domain.Document{
		ID:        uuid.New().String(),
		Type:      domain.DocumentURL,
		Content:   content,
		Metadata:  map[string]interface{}{"url": raw},
		CreatedAt: time.Now(),
	}
	if err := deps.Documents.Create(ctx, doc); err != nil {
		return Result{}, fmt.Errorf("ingest.url: persist document: %w", err)
	}

	return Result{Outputs: map[string]interface{}{
		"document_id": doc.ID,
		"content":     content,
		"url":         raw,
	}}, nil
}

// stripHTML walks the parsed document tree and concatenates text node
// content, skipping script/style subtrees — the nearest idiomatic Go
// equivalent to stripping tags with BeautifulSoup.
func stripHTML(body []byte) string {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return sb.String()
}

func handleIngestWebhook(ctx context.Context, deps *Dependencies, task Task) (Result, error) {
	data, ok := task.Inputs["data"]
	if !ok {
		return Result{}, fmt.Errorf("ingest.webhook: data absent")
	}

	content := renderWebhookData(data)
	doc := &domain.Document{
		ID:        uuid.New().String(),
		Type:      domain.DocumentWebhook,
		Content:   content,
		Metadata:  map[string]interface{}{},
		CreatedAt: time.Now(),
	}
	if err := deps.Documents.Create(ctx, doc); err != nil {
		return Result{}, fmt.Errorf("ingest.webhook: persist document: %w", err)
	}

	return Result{Outputs: map[string]interface{}{
		"document_id": doc.ID,
		"content":     content,
	}}, nil
}

// renderWebhookData deterministically renders an arbitrary payload as
// text: sorted "key: value" lines for a map, or fmt's default form for
// anything else.
func renderWebhookData(data interface{}) string {
	m, ok := data.(map[string]interface{})
	if !ok {
		return fmt.Sprintf("%v", data)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: %v", k, m[k])
	}
	return sb.String()
}
