package infra_engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ekuzmich/collabrun/internal/config"
)

var (
	ErrEngine              = errors.New("execution engine failure")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// Judge0-compatible language ids.
var languageIDs = map[string]int{
	"python":     71,
	"cpp":        54,
	"java":       62,
	"javascript": 63,
}

type Result struct {
	Stdout    string
	Stderr    string
	ElapsedMs int64
}

// Client calls the external code execution engine. The engine is a black
// box reached over HTTP; any transport failure, non-2xx status or deadline
// maps to ErrEngine.
type Client struct {
	baseURL string
	apiKey  string
	apiHost string
	http    *http.Client
}

func New(cfg config.Engine) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		apiHost: cfg.APIHost,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type submissionRequest struct {
	SourceCode   string `json:"source_code"`
	LanguageID   int    `json:"language_id"`
	Stdin        string `json:"stdin,omitempty"`
	CPUTimeLimit int    `json:"cpu_time_limit"`
}

type submissionResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Time   string `json:"time"`
}

func (c *Client) Execute(ctx context.Context, language, sourceCode, stdin string) (Result, error) {
	langID, ok := languageIDs[language]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	body, err := json.Marshal(submissionRequest{
		SourceCode:   sourceCode,
		LanguageID:   langID,
		Stdin:        stdin,
		CPUTimeLimit: 5,
	})
	if err != nil {
		return Result{}, err
	}

	url := c.baseURL + "/submissions?base64_encoded=false&wait=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
		req.Header.Set("X-RapidAPI-Host", c.apiHost)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, errors.Join(ErrEngine, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("%w: engine returned %d", ErrEngine, resp.StatusCode)
	}

	var sr submissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Result{}, errors.Join(ErrEngine, err)
	}

	return Result{
		Stdout:    sr.Stdout,
		Stderr:    sr.Stderr,
		ElapsedMs: parseSeconds(sr.Time),
	}, nil
}

// The engine reports wall time as fractional seconds in a string.
func parseSeconds(s string) int64 {
	if s == "" {
		return 0
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(sec * float64(time.Second/time.Millisecond))
}
