package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultNtfyURL = "https://ntfy.sh"

// Notifier delivers a human-readable alert.
type Notifier interface {
	Send(title, message string) error
}

// Ntfy posts notifications to an ntfy server topic.
type Ntfy struct {
	client  *http.Client
	baseURL string
	topic   string
}

func NewNtfy(baseURL, topic string) *Ntfy {
	if baseURL == "" {
		baseURL = DefaultNtfyURL
	}
	log.Info().
		Str("url", baseURL).
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
	return &Ntfy{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		topic:   topic,
	}
}

func (n *Ntfy) Send(title, message string) error {
	// ntfy only accepts the JSON form on the root path.
	payload := map[string]interface{}{
		"topic":   n.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, n.baseURL+"/", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}

// Log writes notifications to the log. Used when no delivery channel is configured.
type Log struct{}

func (Log) Send(title, message string) error {
	log.Warn().
		Str("title", title).
		Str("message", message).
		Msg("Notification")
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(title, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async queues notifications and delivers them from a single worker so callers
// never block on network I/O. When the queue is full the notification is dropped.
type Async struct {
	next  Notifier
	queue chan note
}

type note struct {
	title, message string
}

func NewAsync(next Notifier, size int) *Async {
	if size <= 0 {
		size = 16
	}
	return &Async{next: next, queue: make(chan note, size)}
}

func (a *Async) Send(title, message string) error {
	select {
	case a.queue <- note{title, message}:
		return nil
	default:
		return fmt.Errorf("notification queue full, dropped %q", title)
	}
}

// Run delivers queued notifications until ctx is done, then drains what is left.
func (a *Async) Run(ctx context.Context) {
	for {
		select {
		case n := <-a.queue:
			a.deliver(n)
		case <-ctx.Done():
			for {
				select {
				case n := <-a.queue:
					a.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) deliver(n note) {
	if err := a.next.Send(n.title, n.message); err != nil {
		log.Error().Err(err).Str("title", n.title).Msg("Failed to deliver notification")
	}
}
