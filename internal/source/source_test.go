package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contesthub/internal/domain"
	"contesthub/internal/httpclient"
	"contesthub/internal/normalize"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestLeetcodeCandidates(t *testing.T) {
	cards := []leetcodeCard{
		{Title: "Weekly Contest 420", Href: "/contest/weekly-contest-420", Time: "Sunday 8:00 AM GMT+5:30", HasTime: true},
		{Title: "Sponsored", Href: "/promo"},
		{Title: "Biweekly Contest 142", Href: "/contest/biweekly-contest-142", Time: "Saturday 8:00 PM GMT+5:30", HasTime: true},
	}

	got := leetcodeCandidates(cards, LeetCodeURL)

	require.Len(t, got, 2)
	assert.Equal(t, Candidate{
		Name:     "Weekly Contest 420",
		URL:      "https://leetcode.com/contest/weekly-contest-420",
		Platform: domain.PlatformLeetcode,
		Start:    normalize.WeekdayClock("Sunday 8:00 AM GMT+5:30"),
		Duration: normalize.FixedDuration("01:30"),
	}, got[0])
	assert.Equal(t, "Biweekly Contest 142", got[1].Name)
	assert.Equal(t, "01:30", got[1].Duration.String())
}

func TestCodechefCandidates(t *testing.T) {
	rows := []codechefRow{
		{Title: "Starters 160", Href: "/START160", Timer: []string{"2 Days", "5 Hrs"}},
		{Title: "Running", Href: "/START159", Timer: []string{"1 Hrs"}},
		{Title: "Broken", Href: "/X"},
	}

	got := codechefCandidates(rows, CodeChefURL)

	require.Len(t, got, 1)
	assert.Equal(t, "Starters 160", got[0].Name)
	assert.Equal(t, "https://www.codechef.com/START160", got[0].URL)
	assert.Equal(t, domain.PlatformCodechef, got[0].Platform)
	assert.Equal(t, normalize.Relative("2 Days 5 Hrs"), got[0].Start)
	assert.Equal(t, "02:00", got[0].Duration.String())
}

func TestCandidatesAreBounded(t *testing.T) {
	cards := make([]leetcodeCard, MaxCandidates+10)
	for i := range cards {
		cards[i] = leetcodeCard{Title: fmt.Sprintf("Weekly %d", i), Href: "/c", Time: "Sunday 8:00 AM GMT+0:00", HasTime: true}
	}
	assert.Len(t, leetcodeCandidates(cards, LeetCodeURL), MaxCandidates)
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "https://leetcode.com/contest/x", resolveURL("https://leetcode.com/contest/", "/contest/x"))
	assert.Equal(t, "https://other.example/a", resolveURL("https://leetcode.com/", "https://other.example/a"))
	assert.Equal(t, "", resolveURL("https://leetcode.com/", "  "))
}

const codeforcesBody = `{
  "status": "OK",
  "result": [
    {"id": 2040, "name": "Codeforces Round 990", "phase": "BEFORE", "startTimeSeconds": 1700000000, "durationSeconds": 7200},
    {"id": 2039, "name": "Codeforces Round 989", "phase": "FINISHED", "startTimeSeconds": 1600000000, "durationSeconds": 7200},
    {"id": 2041, "name": "Educational Round 170", "phase": "BEFORE", "startTimeSeconds": 1700100000, "durationSeconds": 8100}
  ]
}`

func TestCodeforces_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(codeforcesBody))
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Options{Timeout: 5 * time.Second}, testLogger())
	adapter := NewCodeforces(client, srv.URL, testLogger())

	got, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2, "only BEFORE contests are upcoming")

	assert.Equal(t, "Codeforces Round 990", got[0].Name)
	assert.Equal(t, "https://codeforces.com/contest/2040", got[0].URL)
	assert.Equal(t, domain.PlatformCodeforces, got[0].Platform)
	assert.Equal(t, "02:15", got[1].Duration.String())

	res, err := normalize.New().Normalize(got[0].Start, got[0].Duration)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), res.Start)
	assert.Equal(t, "02:00", res.Duration)
}

func TestCodeforces_FetchRejectsFailedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"FAILED","comment":"Call limit exceeded"}`))
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Options{}, testLogger())
	_, err := NewCodeforces(client, srv.URL, testLogger()).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Call limit exceeded")
}

func TestCodeforces_FetchPropagatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Options{}, testLogger())
	_, err := NewCodeforces(client, srv.URL, testLogger()).Fetch(context.Background())

	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Status)
}

type failingVisitor struct{ err error }

func (f failingVisitor) Visit(ctx context.Context, url, waitSelector string, fn func(page *rod.Page) error) error {
	return f.err
}

func TestScrapingAdapters_PropagateVisitErrors(t *testing.T) {
	boom := errors.New("navigation timed out")
	visitor := failingVisitor{err: boom}

	for _, a := range []Adapter{NewLeetCode(visitor, testLogger()), NewCodeChef(visitor, testLogger())} {
		got, err := a.Fetch(context.Background())
		assert.ErrorIs(t, err, boom, a.Name())
		assert.Nil(t, got, a.Name())
	}
}
