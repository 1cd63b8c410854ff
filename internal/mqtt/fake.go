package mqtt

import (
	"sync"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

type Command struct {
	Command model.Command
	Reason  string
}

type Alert struct {
	Title   string
	Message string
}

// FakeClient records outbound messages for test assertions.
type FakeClient struct {
	mu sync.Mutex

	Commands        []Command
	Alerts          []Alert
	Recommendations []Recommendation

	// PublishError, if set, is returned by PublishCommand.
	PublishError error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

func (f *FakeClient) PublishCommand(cmd model.Command, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Commands = append(f.Commands, Command{cmd, reason})
	return nil
}

func (f *FakeClient) Send(title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Alerts = append(f.Alerts, Alert{title, message})
	return nil
}

func (f *FakeClient) PublishRecommendation(r Recommendation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Recommendations = append(f.Recommendations, r)
	return nil
}

func (f *FakeClient) SetPublishError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PublishError = err
}

// SentCommands returns a copy of the commands published so far.
func (f *FakeClient) SentCommands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.Commands...)
}

func (f *FakeClient) SentAlerts() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Alert(nil), f.Alerts...)
}

func (f *FakeClient) SentRecommendations() []Recommendation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Recommendation(nil), f.Recommendations...)
}
