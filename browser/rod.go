package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

// DefaultUserAgents is the pool a session's user agent is drawn from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// navigatorPatchJS runs before any page script, on top of stealth.JS.
const navigatorPatchJS = `(() => {
	const define = (obj, prop, value) => {
		try { Object.defineProperty(obj, prop, { get: () => value, configurable: true }); } catch (e) {}
	};
	define(navigator, 'webdriver', undefined);
	define(navigator, 'plugins', [1, 2, 3, 4, 5]);
	define(navigator, 'languages', ['en-US', 'en']);
	define(navigator, 'hardwareConcurrency', 4);
	define(navigator, 'deviceMemory', 8);
	define(screen, 'width', 1920);
	define(screen, 'height', 1080);
	const query = window.navigator.permissions && window.navigator.permissions.query;
	if (query) {
		window.navigator.permissions.query = (p) =>
			p && p.name === 'notifications'
				? Promise.resolve({ state: Notification.permission })
				: query.call(window.navigator.permissions, p);
	}
})();`

const pingTimeout = 2 * time.Second

// RodLauncher starts stealth-configured Chromium sessions through go-rod.
type RodLauncher struct{}

// NewRodLauncher returns a launcher for live Chromium sessions.
func NewRodLauncher() *RodLauncher {
	return &RodLauncher{}
}

// Launch starts a browser, opens one stealth page and returns the session.
// Any partially started process is killed on failure.
func (RodLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	if opts.WindowWidth == 0 {
		opts.WindowWidth = 1920
	}
	if opts.WindowHeight == 0 {
		opts.WindowHeight = 1080
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The process outlives ctx when sessions are kept open, so neither the
	// launcher nor the browser is bound to it.
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox)

	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "VizDisplayCompositor,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("no-default-browser-check"))
	l.Set(flags.Flag("start-maximized"))
	l.Set(flags.Flag("window-size"), strconv.Itoa(opts.WindowWidth)+","+strconv.Itoa(opts.WindowHeight))
	if opts.UserAgent != "" {
		l.Set(flags.Flag("user-agent"), opts.UserAgent)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	// Keep the real window metrics and the chosen user agent instead of
	// rod's emulated laptop device.
	b = b.NoDefaultDevice()

	s := &rodSession{launcher: l, browser: b}

	page, err := stealth.Page(b)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open stealth page: %w", err)
	}
	if _, err := page.EvalOnNewDocument(navigatorPatchJS); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("inject navigator patch: %w", err)
	}
	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      opts.UserAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		}); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	s.page = page
	s.router = newBlockList(opts.BlockResources, opts.BlockTrackers).hijack(page)

	slog.Debug("browser session started",
		"controlURL", controlURL,
		"headless", opts.Headless,
		"proxy", opts.Proxy != "",
	)
	return s, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	closed   bool
}

func (s *rodSession) Page(ctx context.Context) Page {
	return &rodPage{p: s.page.Context(ctx)}
}

func (s *rodSession) Ping(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	timed := s.page.Context(ctx).Timeout(pingTimeout)
	defer timed.CancelTimeout()
	v, err := evalJSON(timed, `() => 1`)
	if err != nil {
		return err
	}
	if v.Int() != 1 {
		return errors.New("browser: unexpected ping result")
	}
	return nil
}

func (s *rodSession) ClearState(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	p := s.page.Context(ctx)
	if err := (proto.NetworkClearBrowserCookies{}).Call(p); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	if _, err := p.Eval(`() => {
		try { window.localStorage.clear(); } catch (e) {}
		try { window.sessionStorage.clear(); } catch (e) {}
	}`); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}
	return nil
}

// Close kills the browser process and removes its profile directory.
func (s *rodSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.router != nil {
		_ = s.router.Stop()
	}
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}

type rodPage struct {
	p *rod.Page
}

func (p *rodPage) Navigate(url string) error {
	if err := p.p.Navigate(url); err != nil {
		return err
	}
	return p.p.WaitLoad()
}

func (p *rodPage) Elements(selector string) ([]Element, error) {
	els, err := p.p.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

func (p *rodPage) ElementX(xpath string) (Element, bool, error) {
	has, el, err := p.p.HasX(xpath)
	if err != nil || !has {
		return nil, false, err
	}
	return &rodElement{e: el}, true, nil
}

func (p *rodPage) ViewportHeight() (int, error) {
	v, err := evalJSON(p.p, `() => window.innerHeight`)
	return v.Int(), err
}

func (p *rodPage) DocumentHeight() (int, error) {
	v, err := evalJSON(p.p, `() => Math.max(document.body.scrollHeight, document.documentElement.scrollHeight)`)
	return v.Int(), err
}

func (p *rodPage) ScrollTo(y int) error {
	_, err := p.p.Eval(`(y) => window.scrollTo(0, y)`, y)
	return err
}

func (p *rodPage) HTML() (string, error) {
	return p.p.HTML()
}

type rodElement struct {
	e *rod.Element
}

func (e *rodElement) Text() (string, error) {
	return e.e.Text()
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.e.Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (e *rodElement) Element(selector string) (Element, bool, error) {
	has, el, err := e.e.Has(selector)
	if err != nil || !has {
		return nil, false, err
	}
	return &rodElement{e: el}, true, nil
}

func (e *rodElement) Elements(selector string) ([]Element, error) {
	els, err := e.e.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

func (e *rodElement) Parent() (Element, bool, error) {
	return relative(e.e.Parent())
}

func (e *rodElement) PrevSibling() (Element, bool, error) {
	return relative(e.e.Previous())
}

func (e *rodElement) NextSibling() (Element, bool, error) {
	return relative(e.e.Next())
}

func (e *rodElement) ScrollIntoView() error {
	return e.e.ScrollIntoView()
}

func (e *rodElement) Hover() error {
	return e.e.Hover()
}

func (e *rodElement) Click() error {
	return e.e.Click(proto.InputMouseButtonLeft, 1)
}

// relative maps rod's not-found error for parent and sibling lookups to an
// explicit not-found result.
func relative(el *rod.Element, err error) (Element, bool, error) {
	if err != nil {
		var nf *rod.ElementNotFoundError
		if errors.As(err, &nf) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &rodElement{e: el}, true, nil
}

func evalJSON(p *rod.Page, js string, args ...interface{}) (gson.JSON, error) {
	res, err := p.Eval(js, args...)
	if err != nil {
		return gson.New(nil), err
	}
	return res.Value, nil
}

func wrapElements(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{e: el})
	}
	return out
}
