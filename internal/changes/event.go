package changes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"github.com/savaki/cfn-actions/internal/actions"
)

// Event names handled by the Detector
const (
	EventPush             = "push"
	EventPullRequest      = "pull_request"
	EventWorkflowDispatch = "workflow_dispatch"
)

// Event is the subset of a GitHub event the Detector needs
type Event struct {
	Name         string
	SHA          string
	Before       string
	PRNumber     int
	PRHeadSHA    string
	ResourcePath string
	AppName      string
	Repository   string
}

type payload struct {
	Before string `json:"before"`
	Inputs struct {
		ResourcePath string `json:"resource_path"`
	} `json:"inputs"`
	PullRequest *struct {
		Number int `json:"number"`
		Head   struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
}

// LoadEvent builds an Event from the runtime context and the event payload
// at GITHUB_EVENT_PATH. A missing payload file leaves the payload fields
// empty. appName only applies to workflow_dispatch.
func LoadEvent(ctx context.Context, actx actions.Context, appName string) (Event, error) {
	event := Event{
		Name:       actx.EventName,
		SHA:        actx.SHA,
		Before:     actx.Before,
		Repository: actx.Repository,
	}

	var p payload
	if actx.EventPath != "" {
		data, err := os.ReadFile(actx.EventPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			zerolog.Ctx(ctx).Warn().Str("path", actx.EventPath).Msg("Event payload not found")
		case err != nil:
			return Event{}, fmt.Errorf("failed to read event payload %s: %w", actx.EventPath, err)
		default:
			if err := json.Unmarshal(data, &p); err != nil {
				return Event{}, fmt.Errorf("failed to parse event payload %s: %w", actx.EventPath, err)
			}
		}
	}

	switch event.Name {
	case EventWorkflowDispatch:
		event.ResourcePath = p.Inputs.ResourcePath
		event.AppName = appName
	case EventPullRequest:
		if p.PullRequest != nil {
			event.PRNumber = p.PullRequest.Number
			event.PRHeadSHA = p.PullRequest.Head.SHA
		}
	case EventPush:
		if event.Before == "" {
			event.Before = p.Before
		}
	}

	return event, nil
}
