// Package gateway talks to the remote feed-formulation optimization service.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/feedopt/feedopt/pkg/formulation"
)

const (
	OpFetchCatalog       = "fetch_catalog"
	OpSubmitOptimization = "optimize"
	OpSubmitConsultation = "consult"
	OpImportCatalog      = "import_catalog"
	OpExportCatalog      = "export_catalog"
)

// Config configures a Client. An empty BaseURL and a zero Timeout or
// RetryWaitMin fall back to defaults. RetryMax is used as given: zero means
// a single attempt with no retries. Start from DefaultConfig to get the
// default retry count.
type Config struct {
	BaseURL      string
	Proxy        string
	RetryMax     int
	RetryWaitMin time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://localhost:8000",
		RetryMax: defaultRetryMax,
		Timeout:  defaultTimeout,
	}
}

// Client is safe for concurrent use.
type Client struct {
	base *url.URL
	http *retryablehttp.Client
}

// Optimization is a solved formulation together with the exact body the
// service returned.
type Optimization struct {
	Result formulation.Result
	Raw    []byte
}

// Download is a file served by the service.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid service URL %q: %v", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid service URL %q: scheme must be http or https", cfg.BaseURL)
	}
	hc, err := newRetryClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{base: base, http: hc}, nil
}

// BaseURL returns the service root the client sends requests to.
func (c *Client) BaseURL() string { return c.base.String() }

// FetchCatalog retrieves the raw material and nutrient names the service
// knows about.
func (c *Client) FetchCatalog(ctx context.Context) (formulation.Vocabulary, error) {
	res, err := c.send(ctx, request{Op: OpFetchCatalog, Method: http.MethodGet, Path: "/data"})
	if err != nil {
		return formulation.Vocabulary{}, err
	}
	if !gjson.ValidBytes(res.Body) {
		return formulation.Vocabulary{}, &Error{Op: OpFetchCatalog, StatusCode: res.StatusCode, Message: "malformed catalog: " + truncate(string(res.Body))}
	}
	body := gjson.ParseBytes(res.Body)
	if e := body.Get("erro"); e.Exists() {
		return formulation.Vocabulary{}, &Error{Op: OpFetchCatalog, StatusCode: res.StatusCode, Message: e.String(), Err: formulation.ErrServiceFailure}
	}
	return formulation.Vocabulary{
		Materials: names(body, "materias_primas", "raw_materials", "materials"),
		Nutrients: names(body, "nutrientes", "nutrients"),
	}, nil
}

func names(body gjson.Result, keys ...string) []string {
	out := []string{}
	for _, k := range keys {
		v := body.Get(k)
		if !v.IsArray() {
			continue
		}
		for _, item := range v.Array() {
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
		}
		break
	}
	return out
}

// SubmitOptimization posts a compiled request and parses the result.
func (c *Client) SubmitOptimization(ctx context.Context, req formulation.Request) (Optimization, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Optimization{}, &Error{Op: OpSubmitOptimization, Message: err.Error(), Err: err}
	}
	res, err := c.send(ctx, jsonRequest(OpSubmitOptimization, "/optimize", body))
	if err != nil {
		return Optimization{}, err
	}
	result, err := formulation.ParseResult(res.Body)
	if err != nil {
		return Optimization{Raw: res.Body}, &Error{Op: OpSubmitOptimization, StatusCode: res.StatusCode, Message: serviceMessage(res.Body, err), Err: err}
	}
	return Optimization{Result: result, Raw: res.Body}, nil
}

// SubmitConsultation asks the service to evaluate a fixed composition.
func (c *Client) SubmitConsultation(ctx context.Context, d formulation.Draft) (formulation.Consultation, error) {
	body, err := json.Marshal(map[string]formulation.Draft{"formulacao": d})
	if err != nil {
		return formulation.Consultation{}, &Error{Op: OpSubmitConsultation, Message: err.Error(), Err: err}
	}
	res, err := c.send(ctx, jsonRequest(OpSubmitConsultation, "/consulta", body))
	if err != nil {
		return formulation.Consultation{}, err
	}
	cons, err := formulation.ParseConsultation(res.Body)
	if err != nil {
		return formulation.Consultation{}, &Error{Op: OpSubmitConsultation, StatusCode: res.StatusCode, Message: serviceMessage(res.Body, err), Err: err}
	}
	return cons, nil
}

// ImportCatalog uploads a spreadsheet of raw materials into a service session
// and returns the service's confirmation message.
func (c *Client) ImportCatalog(ctx context.Context, filename string, r io.Reader, session string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("arquivo", filename)
	if err == nil {
		_, err = io.Copy(fw, r)
	}
	if err == nil {
		err = mw.WriteField("sessao", session)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		return "", &Error{Op: OpImportCatalog, Message: err.Error(), Err: err}
	}

	res, err := c.send(ctx, request{
		Op:      OpImportCatalog,
		Method:  http.MethodPost,
		Path:    "/materias-primas/importar",
		Headers: []header{{"Content-Type", mw.FormDataContentType()}},
		Body:    buf.Bytes(),
	})
	if err != nil {
		return "", err
	}
	if gjson.ValidBytes(res.Body) {
		body := gjson.ParseBytes(res.Body)
		if e := body.Get("erro"); e.Exists() {
			return "", &Error{Op: OpImportCatalog, StatusCode: res.StatusCode, Message: e.String(), Err: formulation.ErrServiceFailure}
		}
		for _, k := range []string{"mensagem", "message", "status"} {
			if v := body.Get(k); v.Exists() {
				return v.String(), nil
			}
		}
	}
	return strings.TrimSpace(string(res.Body)), nil
}

// ExportCatalog downloads the raw materials stored in a service session.
func (c *Client) ExportCatalog(ctx context.Context, session string) (Download, error) {
	res, err := c.send(ctx, request{
		Op:     OpExportCatalog,
		Method: http.MethodGet,
		Path:   "/materias-primas/exportar",
		Query:  url.Values{"sessao": {session}},
	})
	if err != nil {
		return Download{}, err
	}
	d := Download{
		Filename:    "materias_primas.xlsx",
		ContentType: res.ContentType,
		Data:        res.Body,
	}
	if _, params, err := mime.ParseMediaType(res.Disposition); err == nil && params["filename"] != "" {
		d.Filename = params["filename"]
	}
	return d, nil
}

func jsonRequest(op, path string, body []byte) request {
	return request{
		Op:      op,
		Method:  http.MethodPost,
		Path:    path,
		Headers: []header{{"Content-Type", "application/json"}},
		Body:    body,
	}
}

func serviceMessage(body []byte, err error) string {
	if e := gjson.GetBytes(body, "erro"); e.Exists() {
		return e.String()
	}
	return err.Error()
}
