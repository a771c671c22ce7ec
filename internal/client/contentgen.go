package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"quizroom/internal/models"
)

// ContentGenerator is the external content-generation collaborator. Called
// at most once per start/generate invocation; errors are surfaced verbatim
// to the host for retry.
type ContentGenerator interface {
	GenerateQuestions(ctx context.Context, req GenerationRequest) ([]models.Question, error)
	GenerateNotes(ctx context.Context, req GenerationRequest) (string, error)
}

type GenerationRequest struct {
	Topic          string `json:"topic"`
	Difficulty     string `json:"difficulty"`
	TotalQuestions int    `json:"total_questions,omitempty"`
	ContentFocus   string `json:"content_focus,omitempty"`
	EducationLevel string `json:"education_level,omitempty"`
	StudyNotes     string `json:"study_notes,omitempty"`
	SourceText     string `json:"source_text,omitempty"`
}

type generationResponse struct {
	Success   bool              `json:"success"`
	Questions []models.Question `json:"questions,omitempty"`
	Notes     string            `json:"notes,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type ContentGenClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewContentGenClient(baseURL, apiKey string) *ContentGenClient {
	return &ContentGenClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *ContentGenClient) GenerateQuestions(ctx context.Context, req GenerationRequest) ([]models.Question, error) {
	resp, err := c.post(ctx, "/v1/questions", req)
	if err != nil {
		return nil, err
	}
	if len(resp.Questions) == 0 {
		return nil, fmt.Errorf("content service returned no questions")
	}
	return resp.Questions, nil
}

func (c *ContentGenClient) GenerateNotes(ctx context.Context, req GenerationRequest) (string, error) {
	resp, err := c.post(ctx, "/v1/notes", req)
	if err != nil {
		return "", err
	}
	if resp.Notes == "" {
		return "", fmt.Errorf("content service returned empty notes")
	}
	return resp.Notes, nil
}

func (c *ContentGenClient) post(ctx context.Context, path string, req GenerationRequest) (*generationResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("content service unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("content service status %d", httpResp.StatusCode)
	}

	var resp generationResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode content service response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("content service error: %s", resp.Error)
	}
	return &resp, nil
}
