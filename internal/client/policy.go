package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PolicyService answers entitlement questions: how many players or
// questions a given user's tier allows.
type PolicyService interface {
	CheckPlayerCount(ctx context.Context, userID string, requested int) (*PolicyDecision, error)
	CheckQuestionCount(ctx context.Context, userID string, requested int) (*PolicyDecision, error)
}

type PolicyDecision struct {
	Allowed         bool `json:"allowed"`
	MaxAllowed      int  `json:"max_allowed"`
	RequiresUpgrade bool `json:"requires_upgrade"`
}

type policyRequest struct {
	UserID                 string `json:"user_id"`
	RequestedPlayerCount   int    `json:"requested_player_count,omitempty"`
	RequestedQuestionCount int    `json:"requested_question_count,omitempty"`
}

type PolicyClient struct {
	baseURL string
	http    *http.Client
}

func NewPolicyClient(baseURL string) *PolicyClient {
	return &PolicyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *PolicyClient) CheckPlayerCount(ctx context.Context, userID string, requested int) (*PolicyDecision, error) {
	return c.check(ctx, policyRequest{UserID: userID, RequestedPlayerCount: requested})
}

func (c *PolicyClient) CheckQuestionCount(ctx context.Context, userID string, requested int) (*PolicyDecision, error) {
	return c.check(ctx, policyRequest{UserID: userID, RequestedQuestionCount: requested})
}

func (c *PolicyClient) check(ctx context.Context, req policyRequest) (*PolicyDecision, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/entitlements/check", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("policy service unreachable: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("policy service status %d", httpResp.StatusCode)
	}

	var decision PolicyDecision
	if err := json.NewDecoder(httpResp.Body).Decode(&decision); err != nil {
		return nil, fmt.Errorf("failed to decode policy response: %w", err)
	}
	return &decision, nil
}
