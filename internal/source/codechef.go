package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/sirupsen/logrus"

	"contesthub/internal/domain"
	"contesthub/internal/normalize"
)

const (
	CodeChefURL = "https://www.codechef.com/contests"

	codechefRowSelector   = "._flex__container_7s2sw_528"
	codechefTitleSelector = "a span"
	codechefTimerSelector = "._timer__container_7s2sw_590 p"
	codechefDuration      = "02:00"
)

// codechefRow holds one listing row; Timer is the "N Days" / "M Hrs" countdown.
type codechefRow struct {
	Title string
	Href  string
	Timer []string
}

// CodeChef scrapes the CodeChef contest listing.
type CodeChef struct {
	browser PageVisitor
	url     string
	log     logrus.FieldLogger
}

func NewCodeChef(browser PageVisitor, logger logrus.FieldLogger) *CodeChef {
	return &CodeChef{
		browser: browser,
		url:     CodeChefURL,
		log:     logger.WithField("source", "codechef"),
	}
}

func (a *CodeChef) Name() string { return "codechef" }

func (a *CodeChef) Fetch(ctx context.Context) ([]Candidate, error) {
	var rows []codechefRow
	err := a.browser.Visit(ctx, a.url, codechefRowSelector, func(page *rod.Page) error {
		els, err := page.Elements(codechefRowSelector)
		if err != nil {
			return err
		}
		for _, el := range els {
			row, err := readCodechefRow(el)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("codechef: %w", err)
	}

	a.log.WithField("rows", len(rows)).Debug("Read contest rows")
	return codechefCandidates(rows, a.url), nil
}

func readCodechefRow(el *rod.Element) (codechefRow, error) {
	var row codechefRow
	var err error
	if row.Title, _, err = childText(el, codechefTitleSelector); err != nil {
		return row, err
	}
	if row.Href, err = childAttr(el, "a", "href"); err != nil {
		return row, err
	}
	timers, err := el.Elements(codechefTimerSelector)
	if err != nil {
		return row, err
	}
	for _, p := range timers {
		text, err := p.Text()
		if err != nil {
			return row, err
		}
		row.Timer = append(row.Timer, strings.TrimSpace(text))
	}
	return row, nil
}

// codechefCandidates keeps rows whose countdown has exactly two parts.
// Running contests show a single "ends in" part and are skipped.
func codechefCandidates(rows []codechefRow, base string) []Candidate {
	var out []Candidate
	for _, r := range rows {
		if len(r.Timer) != 2 {
			continue
		}
		out = append(out, Candidate{
			Name:     r.Title,
			URL:      resolveURL(base, r.Href),
			Platform: domain.PlatformCodechef,
			Start:    normalize.Relative(r.Timer[0] + " " + r.Timer[1]),
			Duration: normalize.FixedDuration(codechefDuration),
		})
	}
	return bounded(out)
}
