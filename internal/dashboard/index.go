package dashboard

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

const indexPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta http-equiv="refresh" content="%d">
  <title>speedmon</title>
  <style>
    body { font-family: sans-serif; margin: 2em; }
    .metric { display: inline-block; margin-right: 3em; }
    .value { font-size: 2.5em; }
    .fail { color: #c0392b; }
  </style>
</head>
<body>
  <h1>speedmon</h1>
  <div id="current">loading&hellip;</div>
  <script>
    fetch('api/current').then(r => r.json()).then(r => {
      const el = document.getElementById('current');
      if (!r) { el.textContent = 'no results yet'; return; }
      if (!r.success) {
        el.innerHTML = '<span class="fail">last test failed: ' + r.error_message + '</span>';
        return;
      }
      el.innerHTML =
        '<div class="metric"><div class="value">' + r.download_mbps + '</div>download Mbps</div>' +
        '<div class="metric"><div class="value">' + r.upload_mbps + '</div>upload Mbps</div>' +
        '<div class="metric"><div class="value">' + r.ping_ms + '</div>ping ms</div>' +
        '<p>' + r.timestamp + (r.test_server ? ' &mdash; ' + r.test_server : '') + '</p>';
    });
  </script>
</body>
</html>
`

// Index serves the minimal auto-refreshing status page.
func (h *Handler) Index(c echo.Context) error {
	refresh := h.autoRefreshSeconds
	if refresh <= 0 {
		refresh = 60
	}
	return c.HTML(http.StatusOK, fmt.Sprintf(indexPage, refresh))
}
