// Package table loads remote difficulty tables and checks how much of a table
// the local library covers.
package table

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/logging"
	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

// DefaultTimeout bounds each HTTP request of a Loader.
const DefaultTimeout = 30 * time.Second

// maxBody caps a downloaded document.
const maxBody = 64 << 20

// Level is a chart's table level. Tables publish it as either a JSON string
// or a JSON number; both decode to the same text.
type Level string

// UnmarshalJSON accepts a string or a number.
func (l *Level) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Level(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("level must be a string or number: %w", err)
	}
	*l = Level(n.String())
	return nil
}

// Number returns the numeric value of l, if it has one.
func (l Level) Number() (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(l)), 64)
	return f, err == nil
}

// Chart is one entry of a table's data file.
type Chart struct {
	Title   string `json:"title"`
	Artist  string `json:"artist,omitempty"`
	URL     string `json:"url"`
	URLDiff string `json:"url_diff,omitempty"`
	SHA256  string `json:"sha256"`
	MD5     string `json:"md5,omitempty"`
	Level   Level  `json:"level"`
}

// Header is a table's header.json.
type Header struct {
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	DataURL string `json:"data_url"`
}

// Table is a loaded difficulty table.
type Table struct {
	Name    string  `json:"name,omitempty"`
	Symbol  string  `json:"symbol,omitempty"`
	DataURL string  `json:"data_url"`
	Charts  []Chart `json:"charts"`
}

// Loader fetches tables over HTTP.
type Loader struct {
	Client *http.Client
	log    *logging.Logger
}

// NewLoader returns a Loader whose requests time out after timeout. A zero
// timeout uses DefaultTimeout.
func NewLoader(timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Loader{
		Client: &http.Client{Timeout: timeout},
		log:    logging.Get("table"),
	}
}

// Load fetches the table at rawURL. An HTML page is resolved through its
// bmstable meta tag and header.json. A page without the tag whose URL ends in
// table.html falls back to score.json beside it. Any other URL is fetched as
// the data file directly.
func (l *Loader) Load(ctx context.Context, rawURL string) (*Table, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, types.E(types.KindExternal, "table", rawURL, err)
	}

	body, contentType, err := l.get(ctx, base.String())
	if err != nil {
		return nil, err
	}

	if !looksLikeHTML(contentType, body) {
		return l.decodeData(base.String(), body)
	}

	headerRef, ok := findHeaderRef(body)
	if !ok {
		if strings.HasSuffix(base.Path, "table.html") {
			fallback := *base
			fallback.Path = strings.TrimSuffix(base.Path, "table.html") + "score.json"
			l.log.Debug("no bmstable meta, using score.json", "url", fallback.String())
			return l.fetchData(ctx, fallback.String())
		}
		return nil, types.E(types.KindExternal, "table", rawURL, fmt.Errorf("page has no bmstable meta tag"))
	}

	headerURL, err := base.Parse(headerRef)
	if err != nil {
		return nil, types.E(types.KindExternal, "table", headerRef, err)
	}
	raw, _, err := l.get(ctx, headerURL.String())
	if err != nil {
		return nil, err
	}
	var h Header
	if err := json.Unmarshal(trimBOM(raw), &h); err != nil {
		return nil, types.E(types.KindExternal, "table header", headerURL.String(), err)
	}
	if h.DataURL == "" {
		return nil, types.E(types.KindExternal, "table header", headerURL.String(), fmt.Errorf("header has no data_url"))
	}
	dataURL, err := headerURL.Parse(h.DataURL)
	if err != nil {
		return nil, types.E(types.KindExternal, "table header", h.DataURL, err)
	}

	t, err := l.fetchData(ctx, dataURL.String())
	if err != nil {
		return nil, err
	}
	t.Name = h.Name
	t.Symbol = h.Symbol
	return t, nil
}

func (l *Loader) fetchData(ctx context.Context, dataURL string) (*Table, error) {
	body, _, err := l.get(ctx, dataURL)
	if err != nil {
		return nil, err
	}
	return l.decodeData(dataURL, body)
}

func (l *Loader) decodeData(dataURL string, body []byte) (*Table, error) {
	var charts []Chart
	if err := json.Unmarshal(trimBOM(body), &charts); err != nil {
		return nil, types.E(types.KindExternal, "table data", dataURL, err)
	}
	l.log.Info("table loaded", "url", dataURL, "charts", len(charts))
	return &Table{DataURL: dataURL, Charts: charts}, nil
}

func (l *Loader) get(ctx context.Context, target string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", types.E(types.KindExternal, "fetch", target, err)
	}
	l.log.Debug("fetching", "url", target)

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, "", types.E(types.KindExternal, "fetch", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", types.E(types.KindExternal, "fetch", target, fmt.Errorf("unexpected status %s", resp.Status))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, "", types.E(types.KindExternal, "fetch", target, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(contentType, "html") {
		return true
	}
	trimmed := bytes.TrimSpace(trimBOM(body))
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// findHeaderRef returns the content of <meta name="bmstable" content="...">.
func findHeaderRef(page []byte) (string, bool) {
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "meta" || !hasAttr {
				continue
			}
			var metaName, content string
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				switch string(key) {
				case "name":
					metaName = string(val)
				case "content":
					content = string(val)
				}
			}
			if strings.EqualFold(metaName, "bmstable") && content != "" {
				return content, true
			}
		}
	}
}

func trimBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
}
