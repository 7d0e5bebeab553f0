package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aman-churiwal/projectguard/internal/circuitbreaker"
)

// WebhookCredentialService is the vault service name whose secret authenticates webhook calls
const WebhookCredentialService = "webhook"

// CredentialLookup resolves a server-side secret for a user
type CredentialLookup interface {
	GetByService(ctx context.Context, userID, service string) (string, error)
}

// WebhookNotifier posts invitations as JSON to a fixed URL. When the inviter
// stores a "webhook" credential it is sent as a bearer token.
type WebhookNotifier struct {
	url         string
	client      *http.Client
	breaker     *circuitbreaker.CircuitBreaker
	credentials CredentialLookup
	logger      *slog.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, credentials CredentialLookup, logger *slog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("webhook circuit state changed", "from", from.String(), "to", to.String())
		},
	})

	return &WebhookNotifier{
		url:         url,
		client:      &http.Client{Timeout: timeout},
		breaker:     breaker,
		credentials: credentials,
		logger:      logger,
	}
}

func (n *WebhookNotifier) NotifyInvitation(ctx context.Context, inv Invitation) error {
	body, err := json.Marshal(struct {
		Event string `json:"event"`
		Invitation
	}{Event: "member.invited", Invitation: inv})
	if err != nil {
		return fmt.Errorf("failed to encode invitation: %w", err)
	}

	var token string
	if n.credentials != nil {
		token, err = n.credentials.GetByService(ctx, inv.InviterID, WebhookCredentialService)
		if err != nil {
			n.logger.DebugContext(ctx, "no webhook credential for inviter", "inviter_id", inv.InviterID)
			token = ""
		}
	}

	return n.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusMultipleChoices {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
}

// Returns the breaker state for health reporting
func (n *WebhookNotifier) CircuitState() circuitbreaker.State {
	return n.breaker.State()
}
