package source

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"contesthub/internal/domain"
	"contesthub/internal/normalize"
)

const (
	CodeforcesAPIURL      = "https://codeforces.com/api/contest.list"
	codeforcesContestBase = "https://codeforces.com/contest/"
	codeforcesPhaseBefore = "BEFORE"
)

type codeforcesResponse struct {
	Status  string              `json:"status"`
	Comment string              `json:"comment"`
	Result  []codeforcesContest `json:"result"`
}

type codeforcesContest struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Phase            string `json:"phase"`
	StartTimeSeconds int64  `json:"startTimeSeconds"`
	DurationSeconds  int64  `json:"durationSeconds"`
}

// Codeforces reads the public contest.list API.
type Codeforces struct {
	client JSONGetter
	apiURL string
	log    logrus.FieldLogger
}

// NewCodeforces uses CodeforcesAPIURL when apiURL is empty.
func NewCodeforces(client JSONGetter, apiURL string, logger logrus.FieldLogger) *Codeforces {
	if apiURL == "" {
		apiURL = CodeforcesAPIURL
	}
	return &Codeforces{
		client: client,
		apiURL: apiURL,
		log:    logger.WithField("source", "codeforces"),
	}
}

func (a *Codeforces) Name() string { return "codeforces" }

func (a *Codeforces) Fetch(ctx context.Context) ([]Candidate, error) {
	var resp codeforcesResponse
	if err := a.client.GetJSON(ctx, a.apiURL, &resp); err != nil {
		return nil, fmt.Errorf("codeforces: %w", err)
	}
	if resp.Status != "OK" {
		return nil, fmt.Errorf("codeforces: api status %q: %s", resp.Status, resp.Comment)
	}

	var out []Candidate
	for _, c := range resp.Result {
		if c.Phase != codeforcesPhaseBefore {
			continue
		}
		out = append(out, Candidate{
			Name:     c.Name,
			URL:      fmt.Sprintf("%s%d", codeforcesContestBase, c.ID),
			Platform: domain.PlatformCodeforces,
			Start:    normalize.Epoch(c.StartTimeSeconds),
			Duration: normalize.SecondsDuration(c.DurationSeconds),
		})
	}

	a.log.WithFields(logrus.Fields{
		"listed":   len(resp.Result),
		"upcoming": len(out),
	}).Debug("Read contest list")
	return bounded(out), nil
}
