package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/babysteps/progression/internal/domain"
	"github.com/babysteps/progression/internal/guard"
)

const aiRewardsCircuit = "ai-rewards"

// AIRewardClient looks up rewards offered by the AI content collaborator.
type AIRewardClient struct {
	baseURL string
	logger  *slog.Logger
	client  *http.Client
	breaker *guard.CircuitBreaker
}

// NewAIRewardClient creates an HTTP client for the AI rewards catalog. A nil
// breaker disables circuit breaking.
func NewAIRewardClient(baseURL string, timeout time.Duration, breaker *guard.CircuitBreaker, logger *slog.Logger) *AIRewardClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AIRewardClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

// Reward fetches a reward by id. Unknown ids return NotFound; an unreachable
// or failing collaborator returns Unavailable. A missing price falls back to
// DefaultAIRewardPrice.
func (c *AIRewardClient) Reward(ctx context.Context, rewardID string) (*domain.AIReward, error) {
	if c.baseURL == "" {
		return nil, domain.ErrUnavailable("ai rewards collaborator not configured", nil)
	}
	if strings.TrimSpace(rewardID) == "" {
		return nil, domain.ErrValidation("reward id is required")
	}

	var (
		reward   *domain.AIReward
		notFound bool
	)
	fetch := func(ctx context.Context) error {
		var err error
		reward, notFound, err = c.fetch(ctx, rewardID)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Do(ctx, aiRewardsCircuit, fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		if domain.IsCode(err, domain.CodeUnavailable) {
			return nil, err
		}
		c.logger.Warn("ai rewards lookup failed", "reward_id", rewardID, "error", err)
		return nil, domain.ErrUnavailable("ai rewards collaborator unavailable", err)
	}
	if notFound {
		return nil, domain.ErrNotFound("ai reward", rewardID)
	}

	if reward.ID == "" {
		reward.ID = rewardID
	}
	if reward.Price <= 0 {
		reward.Price = domain.DefaultAIRewardPrice
	}
	return reward, nil
}

// fetch reports notFound without an error so a 404 does not trip the breaker.
func (c *AIRewardClient) fetch(ctx context.Context, rewardID string) (*domain.AIReward, bool, error) {
	endpoint := fmt.Sprintf("%s/rewards/%s", c.baseURL, url.PathEscape(rewardID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, true, nil
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("api returned %d", resp.StatusCode)
	}

	var reward domain.AIReward
	if err := json.NewDecoder(resp.Body).Decode(&reward); err != nil {
		return nil, false, fmt.Errorf("decode reward: %w", err)
	}
	return &reward, false, nil
}
