package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/feedopt/feedopt/internal/utils"
)

const (
	USER_AGENT = "feedopt/1.0"

	defaultRetryMax = 3
	defaultTimeout  = 30 * time.Second
	maxMessageLen   = 200
)

type header struct {
	Name  string
	Value string
}

type request struct {
	Op      string
	Method  string
	Path    string
	Query   url.Values
	Headers []header
	Body    []byte
}

type response struct {
	StatusCode  int
	ContentType string
	Disposition string
	Body        []byte
}

// newRetryClient builds the retrying HTTP client shared by all calls.
func newRetryClient(cfg Config) (*retryablehttp.Client, error) {
	c := retryablehttp.NewClient()
	c.Logger = leveledLogger{utils.Log}
	c.RetryMax = cfg.RetryMax
	if cfg.RetryMax < 0 {
		c.RetryMax = 0
	}
	if cfg.RetryWaitMin > 0 {
		c.RetryWaitMin = cfg.RetryWaitMin
		if c.RetryWaitMax < cfg.RetryWaitMin {
			c.RetryWaitMax = cfg.RetryWaitMin
		}
	}
	// Hand non-2xx responses back so their body can be turned into a message.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler

	if cfg.HTTPClient != nil {
		c.HTTPClient = cfg.HTTPClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.HTTPClient.Timeout = timeout

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %v", err)
		}
		c.HTTPClient.Transport = &http.Transport{
			Proxy:           http.ProxyURL(proxyURL),
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return c, nil
}

func (c *Client) send(ctx context.Context, r request) (*response, error) {
	start := time.Now()
	res, err := c.do(ctx, r)
	observe(r.Op, start, res, err)
	return res, err
}

func (c *Client) do(ctx context.Context, r request) (*response, error) {
	u := c.base.JoinPath(r.Path)
	if len(r.Query) > 0 {
		u.RawQuery = r.Query.Encode()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, &Error{Op: r.Op, Message: err.Error(), Err: err}
	}
	req.Header.Set("User-Agent", USER_AGENT)
	req.Header.Set("Accept", "application/json")
	for _, h := range r.Headers {
		req.Header.Set(h.Name, h.Value)
	}

	utils.Log.WithFields(logrus.Fields{"op": r.Op, "url": u.String()}).Debug("gateway request")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: r.Op, Message: "service unreachable: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: r.Op, StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}
	res := &response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Disposition: resp.Header.Get("Content-Disposition"),
		Body:        data,
	}
	utils.Log.WithFields(logrus.Fields{"op": r.Op, "status": resp.StatusCode, "bytes": len(data)}).Debug("gateway response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return res, &Error{Op: r.Op, StatusCode: resp.StatusCode, Message: errorMessage(res)}
	}
	return res, nil
}

// errorMessage extracts something readable from a failed response: the
// service's JSON error field, an HTML page title, or the trimmed body.
func errorMessage(res *response) string {
	mediaType, _, _ := mime.ParseMediaType(res.ContentType)
	switch {
	case strings.Contains(mediaType, "json") || gjson.ValidBytes(res.Body):
		body := gjson.ParseBytes(res.Body)
		for _, key := range []string{"erro", "detail.0.msg", "detail", "mensagem", "message", "error"} {
			if v := body.Get(key); v.Exists() && v.Type == gjson.String {
				return truncate(v.String())
			}
		}
	case mediaType == "text/html":
		if msg, ok := htmlMessage(res.Body); ok {
			return msg
		}
	}
	if msg := strings.TrimSpace(string(res.Body)); msg != "" {
		return truncate(msg)
	}
	return http.StatusText(res.StatusCode)
}

func htmlMessage(body []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return truncate(title), true
	}
	if text := strings.Join(strings.Fields(doc.Find("body").Text()), " "); text != "" {
		return truncate(text), true
	}
	return "", false
}

func truncate(s string) string {
	s = strings.ToValidUTF8(strings.TrimSpace(strings.ReplaceAll(s, "\n", " ")), "")
	if len([]rune(s)) > maxMessageLen {
		return string([]rune(s)[:maxMessageLen]) + "..."
	}
	return s
}

// leveledLogger routes retryablehttp's logging through logrus.
type leveledLogger struct {
	l *logrus.Logger
}

func (l leveledLogger) fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.l.WithFields(l.fields(kv)).Error(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.l.WithFields(l.fields(kv)).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.l.WithFields(l.fields(kv)).Debug(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.l.WithFields(l.fields(kv)).Warn(msg) }
