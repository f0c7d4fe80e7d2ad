package rebuild

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
)

// SecretHeader carries the process-local shared secret on internal
// rebuild requests.
const SecretHeader = "X-Recalld-Rebuild-Secret"

// Notifier dispatches an asynchronous rebuild. Notify returns once the
// dispatch is accepted, not when the rebuild finishes.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, scopeID, triggeredBy string) error
}

// TriggerRequest is the body of an internal rebuild dispatch.
type TriggerRequest struct {
	ScopeID     string `json:"scope_id,omitempty"`
	TriggeredBy string `json:"triggered_by"`
}

// RemoteNotifier dispatches to a rebuild service over HTTP. The call
// is fire-and-forget: a 202 means the remote accepted the rebuild.
type RemoteNotifier struct {
	endpoint string
	secret   config.Secret
	client   *http.Client
}

// NewRemoteNotifier creates a notifier that POSTs to
// {endpoint}/internal/rebuild.
func NewRemoteNotifier(endpoint string, secret config.Secret) *RemoteNotifier {
	return &RemoteNotifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *RemoteNotifier) Name() string { return "remote" }

// Notify posts the trigger request and expects 202 Accepted.
func (n *RemoteNotifier) Notify(ctx context.Context, scopeID, triggeredBy string) error {
	body, err := json.Marshal(TriggerRequest{ScopeID: scopeID, TriggeredBy: triggeredBy})
	if err != nil {
		return fmt.Errorf("failed to encode trigger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.endpoint+"/internal/rebuild", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret.IsSet() {
		req.Header.Set(SecretHeader, n.secret.Value())
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("rebuild service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("rebuild service returned status %d", resp.StatusCode)
	}
	return nil
}

// LocalNotifier runs the rebuild executor in a background goroutine.
// The rebuild is decoupled from the triggering request: it gets a
// fresh context and runs to completion or failure on its own.
type LocalNotifier struct {
	executor *Executor
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewLocalNotifier creates a notifier backed by the local executor.
func NewLocalNotifier(executor *Executor, logger *zap.Logger) *LocalNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalNotifier{executor: executor, logger: logger}
}

func (n *LocalNotifier) Name() string { return "local" }

// Notify starts the rebuild in the background and returns immediately.
func (n *LocalNotifier) Notify(ctx context.Context, scopeID, triggeredBy string) error {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if _, err := n.executor.Rebuild(context.Background(), scopeID); err != nil {
			n.logger.Error("background rebuild failed",
				zap.String("scope_id", scopeID),
				zap.String("triggered_by", triggeredBy),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until all dispatched rebuilds finish. Used on shutdown
// and in tests.
func (n *LocalNotifier) Wait() {
	n.wg.Wait()
}
