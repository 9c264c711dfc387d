package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultPageTimeout    = 50 * time.Second
)

// BrowserOptions configures the headless browser used by scraping adapters.
type BrowserOptions struct {
	// Bin overrides the browser executable; empty means launcher.LookPath.
	Bin            string
	UserAgent      string
	AcceptLanguage string
	PageTimeout    time.Duration
}

// PageVisitor opens url, waits for waitSelector and hands the page to fn.
type PageVisitor interface {
	Visit(ctx context.Context, url, waitSelector string, fn func(page *rod.Page) error) error
}

// Browser launches a fresh headless browser per visit.
type Browser struct {
	opts BrowserOptions
	log  logrus.FieldLogger
}

// NewBrowser fills unset options with defaults.
func NewBrowser(opts BrowserOptions, logger logrus.FieldLogger) *Browser {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = DefaultAcceptLanguage
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = DefaultPageTimeout
	}
	return &Browser{
		opts: opts,
		log:  logger.WithField("component", "browser"),
	}
}

// Visit releases the page, the browser and the launched process on every
// return path, including timeouts and extraction errors.
func (b *Browser) Visit(ctx context.Context, url, waitSelector string, fn func(page *rod.Page) error) (err error) {
	log := b.log.WithField("url", url)
	log.Info("Visiting page")

	bin := b.opts.Bin
	if bin == "" {
		path, exists := launcher.LookPath()
		if !exists {
			log.Error("Cannot find browser executable for rod")
			return errors.New("rod browser dependency not found")
		}
		bin = path
	}

	l := launcher.New().
		Context(ctx).
		Bin(bin).
		Headless(true).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-gpu")
	defer func() {
		l.Kill()
		l.Cleanup()
	}()

	u, err := l.Launch()
	if err != nil {
		log.WithError(err).Error("Failed to launch browser")
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u).Context(ctx)
	if err = browser.Connect(); err != nil {
		log.WithError(err).Error("Failed to connect to rod browser")
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Error closing rod browser instance")
			if err == nil {
				err = fmt.Errorf("error closing browser: %w", closeErr)
			}
		} else {
			log.Debug("Rod browser instance closed")
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		log.WithError(err).Error("Failed to create rod page")
		return fmt.Errorf("failed to create page: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			log.WithError(closeErr).Debug("Error closing rod page")
		}
	}()

	if err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      b.opts.UserAgent,
		AcceptLanguage: b.opts.AcceptLanguage,
	}); err != nil {
		return fmt.Errorf("failed to set user agent: %w", err)
	}

	pageCtx, cancel := context.WithTimeout(ctx, b.opts.PageTimeout)
	defer cancel()
	p := page.Context(pageCtx)

	if err = p.Navigate(url); err != nil {
		return b.navigationError(log, pageCtx, url, "navigate", err)
	}
	if err = p.WaitLoad(); err != nil {
		return b.navigationError(log, pageCtx, url, "wait for page load", err)
	}
	if waitSelector != "" {
		if _, err = p.Element(waitSelector); err != nil {
			return b.navigationError(log, pageCtx, url, "wait for "+waitSelector, err)
		}
	}

	if err = fn(p); err != nil {
		log.WithError(err).Error("Failed to extract page content")
		return fmt.Errorf("failed to extract %s: %w", url, err)
	}
	return nil
}

func (b *Browser) navigationError(log logrus.FieldLogger, pageCtx context.Context, url, step string, err error) error {
	if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
		log.WithError(pageCtx.Err()).Warn("Scraping timed out")
		return fmt.Errorf("scraping timed out for %s during %s: %w", url, step, pageCtx.Err())
	}
	log.WithError(err).Errorf("Failed to %s", step)
	return fmt.Errorf("failed to %s: %w", step, err)
}

// childText returns the trimmed text of the first el descendant matching
// selector, and whether one exists.
func childText(el *rod.Element, selector string) (string, bool, error) {
	has, child, err := el.Has(selector)
	if err != nil || !has {
		return "", false, err
	}
	text, err := child.Text()
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(text), true, nil
}

// childAttr returns an attribute of the first el descendant matching selector.
func childAttr(el *rod.Element, selector, name string) (string, error) {
	has, child, err := el.Has(selector)
	if err != nil || !has {
		return "", err
	}
	v, err := child.Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return strings.TrimSpace(*v), nil
}
