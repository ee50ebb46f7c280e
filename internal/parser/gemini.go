// Package parser turns a natural-language request into a structured
// workflow using the Gemini API. The engine re-validates the output; this
// package only guarantees the shape, not the quality.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
)

const defaultModel = "gemini-2.0-flash-lite-001"

// Output is the structured form of a user request.
type Output struct {
	Frequency string        `json:"frequency"`
	Time      string        `json:"time,omitempty"`
	Tasks     []models.Task `json:"tasks"`
}

// Client calls the Gemini generateContent endpoint.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Gemini API structures
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

const respondTemplate = `You are an AI agent named AutoAgent. You can send and read emails on the user's behalf when asked in plain language.

Respond to the following message in a concise, friendly and engaging manner. If it is a greeting, announce your name and what you can do. Add a few emojis to make it more engaging.

The message is:
%s`

const promptTemplate = `You are a task parser. Convert the following natural language into a structured JSON format.

Prompt: "%s"

JSON format:
{
    "frequency": "once",
    "tasks": [
        {"action": "email", "mode": "send", "recipient": "a@b.com", "subject": "Hello", "body": "..."},
        {"action": "email", "mode": "read", "query": "from:someone@example.com"}
    ]
}

Respond with JSON only.`

// Parse converts a free-text prompt into a workflow structure.
func (c *Client) Parse(ctx context.Context, prompt string) (Output, error) {
	text, err := c.generate(ctx, fmt.Sprintf(promptTemplate, prompt))
	if err != nil {
		return Output{}, err
	}
	return decodeOutput(text)
}

// Respond produces a conversational reply for messages that carry no tasks,
// such as greetings or general questions.
func (c *Client) Respond(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, fmt.Sprintf(respondTemplate, prompt))
}

// generate runs one generateContent call and returns the first candidate's
// text.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "calling Gemini API")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("Gemini API returned %d: %s", resp.StatusCode, body)
	}

	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return "", errors.Wrap(err, "decoding Gemini response")
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("Gemini response contained no candidates")
	}
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

// decodeOutput extracts the JSON object from model output, tolerating
// markdown code fences and surrounding prose.
func decodeOutput(text string) (Output, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Output{}, errors.Errorf("no JSON object in parser output: %q", text)
	}

	var out Output
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return Output{}, errors.Wrap(err, "decoding parser output")
	}
	if out.Frequency == "" {
		out.Frequency = "once"
	}
	return out, nil
}
