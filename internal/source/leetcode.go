package source

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/sirupsen/logrus"

	"contesthub/internal/domain"
	"contesthub/internal/normalize"
)

const (
	LeetCodeURL = "https://leetcode.com/contest/"

	leetcodeCardSelector  = ".swiper-slide"
	leetcodeTitleSelector = ".truncate"
	leetcodeTimeSelector  = ".text-label-2"
	leetcodeDuration      = "01:30"
)

// leetcodeCard is what the listing page shows for one upcoming contest.
type leetcodeCard struct {
	Title   string
	Href    string
	Time    string
	HasTime bool
}

// LeetCode scrapes the LeetCode contest listing, which only renders its
// upcoming contests after script execution.
type LeetCode struct {
	browser PageVisitor
	url     string
	log     logrus.FieldLogger
}

func NewLeetCode(browser PageVisitor, logger logrus.FieldLogger) *LeetCode {
	return &LeetCode{
		browser: browser,
		url:     LeetCodeURL,
		log:     logger.WithField("source", "leetcode"),
	}
}

func (a *LeetCode) Name() string { return "leetcode" }

func (a *LeetCode) Fetch(ctx context.Context) ([]Candidate, error) {
	var cards []leetcodeCard
	err := a.browser.Visit(ctx, a.url, leetcodeCardSelector, func(page *rod.Page) error {
		els, err := page.Elements(leetcodeCardSelector)
		if err != nil {
			return err
		}
		for _, el := range els {
			card, err := readLeetcodeCard(el)
			if err != nil {
				return err
			}
			cards = append(cards, card)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("leetcode: %w", err)
	}

	a.log.WithField("cards", len(cards)).Debug("Read contest cards")
	return leetcodeCandidates(cards, a.url), nil
}

func readLeetcodeCard(el *rod.Element) (leetcodeCard, error) {
	var card leetcodeCard
	var err error
	if card.Title, _, err = childText(el, leetcodeTitleSelector); err != nil {
		return card, err
	}
	if card.Href, err = childAttr(el, "a", "href"); err != nil {
		return card, err
	}
	if card.Time, card.HasTime, err = childText(el, leetcodeTimeSelector); err != nil {
		return card, err
	}
	return card, nil
}

// leetcodeCandidates drops cards without a time element; those are past
// contests or promotional slides.
func leetcodeCandidates(cards []leetcodeCard, base string) []Candidate {
	var out []Candidate
	for _, c := range cards {
		if !c.HasTime {
			continue
		}
		out = append(out, Candidate{
			Name:     c.Title,
			URL:      resolveURL(base, c.Href),
			Platform: domain.PlatformLeetcode,
			Start:    normalize.WeekdayClock(c.Time),
			Duration: normalize.FixedDuration(leetcodeDuration),
		})
	}
	return bounded(out)
}
