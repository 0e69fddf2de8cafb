package headless

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := withDefaults(Config{})
	require.Equal(t, 60*time.Second, cfg.NavigationTimeout)
	require.Equal(t, 30*time.Second, cfg.WaitTimeout)
	require.Equal(t, 15*time.Second, cfg.ActionTimeout)
	require.Equal(t, 100*time.Millisecond, cfg.PollInterval)

	cfg = withDefaults(Config{WaitTimeout: time.Second})
	require.Equal(t, time.Second, cfg.WaitTimeout)
}

func TestScriptsQuoteSelectors(t *testing.T) {
	t.Parallel()

	sel := `a[href*="/youtube-stats/channel/"]`
	quoted := `"a[href*=\"/youtube-stats/channel/\"]"`

	require.Equal(t, `document.querySelectorAll(`+quoted+`).length`, countScript(sel))
	require.Contains(t, linksScript(sel), quoted)
	require.Contains(t, scrollScript(sel), quoted)
	require.Contains(t, cellTextsScript("table tbody tr", "td"), `"table tbody tr"`)
	require.Contains(t, cellTextsScript("table tbody tr", "td"), `"td"`)
	require.Contains(t, clickScript("table tbody tr", 42), `("table tbody tr")[42]`)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("expected child context to be canceled")
	}
}

func TestForwardCancelStop(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	forwardCancel(parent, cancelChild)()
	cancelParent()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, child.Err())
}

const listingHTML = `<!doctype html><html><body>
<div id="cards">
  <a href="/youtube-stats/channel/UC1/">#1 MrBeast</a>
  <a href="/youtube-stats/channel/UC2/">#2 T-Series</a>
</div>
<table><tbody>
  <tr><td>#1</td><td>MrBeast</td><td>942</td><td>466M</td><td>110.07B</td></tr>
  <tr><td>#2</td><td>T-Series</td><td>23.1K</td><td>310M</td><td>320B</td></tr>
</tbody></table>
<a id="next" href="/detail">detail</a>
</body></html>`

func TestSessionAgainstChrome(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if !chromeAvailable() {
		t.Skip("chrome not available")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/top", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(listingHTML))
	})
	mux.HandleFunc("/detail", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>Monthly Earnings</p><p>$1K - $5K</p></body></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	session, err := NewSession(Config{Headless: true, NavigationTimeout: 20 * time.Second})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	ctx := context.Background()
	require.NoError(t, session.Navigate(ctx, srv.URL+"/top"))
	require.NoError(t, session.WaitFor(ctx, "table tbody tr"))

	n, err := session.Count(ctx, "table tbody tr")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	links, err := session.Links(ctx, `a[href*="/youtube-stats/channel/"]`)
	require.NoError(t, err)
	require.Len(t, links, 2)
	require.Equal(t, "#1 MrBeast", links[0].Text)
	require.Equal(t, "/youtube-stats/channel/UC1/", links[0].Href)

	rows, err := session.CellTexts(ctx, "table tbody tr", "td")
	require.NoError(t, err)
	require.Equal(t, []string{"#2", "T-Series", "23.1K", "310M", "320B"}, rows[1])

	require.NoError(t, session.ScrollToBottom(ctx, "#cards a"))

	got, err := session.ClickAndCapture(ctx, "#next", 0)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/detail", got)

	text, err := session.Text(ctx, "body")
	require.NoError(t, err)
	require.Contains(t, text, "Monthly Earnings")

	require.NoError(t, session.Back(ctx))
	require.NoError(t, session.WaitFor(ctx, "table tbody tr"))
}

func chromeAvailable() bool {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}
