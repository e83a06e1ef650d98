package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/models"
)

// rodSession wraps one launched Chrome process.
type rodSession struct {
	browser *rod.Browser
}

// RodContext is an incognito browser context on a pooled Chrome process.
// Cookies and storage are isolated from every other context.
type RodContext struct {
	browser *rod.Browser // incognito clone; shares the process, not the profile
}

// NewRodLauncher returns a LaunchFunc that starts one headless Chrome shaped
// to look like a regular session.
func NewRodLauncher(cfg config.BrowserConfig) LaunchFunc {
	return func() (Session, error) {
		l := launcher.New().
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox)

		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}

		// ── Stealth flags ────────────────────────────────────────────
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
		l.Set(flags.Flag("disable-ipc-flooding-protection"))
		l.Set(flags.Flag("disable-popup-blocking"))
		l.Set(flags.Flag("disable-prompt-on-repost"))
		l.Set(flags.Flag("disable-renderer-backgrounding"))
		l.Set(flags.Flag("disable-background-timer-throttling"))
		l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
		l.Set(flags.Flag("disable-component-update"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("no-first-run"))

		controlURL, err := l.Launch()
		if err != nil {
			return nil, models.NewScrapeError(
				models.ErrCodeBrowserLaunch,
				"failed to launch browser",
				err,
			)
		}

		b := rod.New().ControlURL(controlURL)
		if err := b.Connect(); err != nil {
			return nil, models.NewScrapeError(
				models.ErrCodeBrowserLaunch,
				"failed to connect to browser",
				err,
			)
		}

		return &rodSession{browser: b}, nil
	}
}

// NewContext creates an isolated incognito context on this browser.
func (s *rodSession) NewContext() (Context, error) {
	inc, err := s.browser.Incognito()
	if err != nil {
		return nil, err
	}
	return &RodContext{browser: inc}, nil
}

// Close kills the Chrome process.
func (s *rodSession) Close() error {
	return s.browser.Close()
}

// NewPage opens a page in this context with stealth JS installed before any
// navigation, so navigator.webdriver masking takes effect on the first load.
func (c *RodContext) NewPage() (*rod.Page, error) {
	page, err := c.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		_ = page.Close()
		return nil, err
	}
	// Headless Chrome omits Accept-Language, which is an easy bot tell.
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language": "en-US,en;q=0.9",
		}),
	}.Call(page)
	return page, nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// Close disposes the incognito context, taking its pages, cookies and
// storage with it. The underlying browser process stays alive.
func (c *RodContext) Close() error {
	return proto.TargetDisposeBrowserContext{
		BrowserContextID: c.browser.BrowserContextID,
	}.Call(c.browser)
}
