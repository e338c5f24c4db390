package httpapi

import "net/http"

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/ui", http.StatusTemporaryRedirect)
}

func (h *Handler) handleUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(uiPage))
}

const uiPage = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>statlens real-time</title>
  <style>
    :root {
      --bg: #0b1220;
      --panel: #121b2f;
      --accent: #23d7b4;
      --ink: #e7edf8;
      --muted: #9fb0ce;
      --danger: #f17272;
      --warn: #ffd166;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: "JetBrains Mono", "Fira Mono", "IBM Plex Mono", monospace;
      color: var(--ink);
      background: radial-gradient(circle at 10% 10%, #1b2950 0%, var(--bg) 42%);
      min-height: 100vh;
    }
    .wrap { max-width: 1200px; margin: 0 auto; padding: 20px; }
    .title { margin: 0 0 14px; font-size: 22px; color: var(--accent); }
    .card { background: var(--panel); border-radius: 10px; padding: 14px; margin-bottom: 14px; }
    .row { display: flex; gap: 12px; align-items: center; flex-wrap: wrap; }
    select, button {
      background: #18243f; color: var(--ink); border: 1px solid #2a3a60;
      border-radius: 6px; padding: 6px 10px; font: inherit;
    }
    .muted { color: var(--muted); font-size: 12px; }
    .legend span { margin-right: 14px; font-size: 12px; }
    svg { width: 100%; height: 320px; }
    #toasts { position: fixed; right: 16px; bottom: 16px; display: grid; gap: 8px; }
    .toast { background: var(--danger); color: #1b0b0b; padding: 8px 12px; border-radius: 6px; }
  </style>
</head>
<body>
  <div class="wrap">
    <h1 class="title">statlens real-time</h1>
    <div class="card row">
      <label>granularity
        <select id="granularity"></select>
      </label>
      <span id="status" class="muted">connecting...</span>
    </div>
    <div class="card">
      <div class="legend">
        <span style="color:#23d7b4">messages</span>
        <span style="color:#ffd166">calls</span>
        <span style="color:#7aa2ff">successes</span>
      </div>
      <svg id="chart" viewBox="0 0 1000 320" preserveAspectRatio="none"></svg>
      <div id="range" class="muted"></div>
    </div>
  </div>
  <div id="toasts"></div>
  <script>
    const series = [
      { key: "message_count", color: "#23d7b4" },
      { key: "call_count", color: "#ffd166" },
      { key: "success_count", color: "#7aa2ff" },
    ];
    const chart = document.getElementById("chart");
    const select = document.getElementById("granularity");
    const statusEl = document.getElementById("status");

    function render(snapshot) {
      const samples = snapshot.samples || [];
      document.getElementById("range").textContent = samples.length
        ? samples.length + "/" + snapshot.capacity + " samples, " + samples[0].timestamp + " .. " + samples[samples.length - 1].timestamp
        : "no samples yet";
      let max = 1;
      for (const s of samples) for (const line of series) max = Math.max(max, s[line.key] || 0);
      const step = samples.length > 1 ? 1000 / (samples.length - 1) : 0;
      chart.innerHTML = series.map(line => {
        const pts = samples.map((s, i) => (i * step).toFixed(1) + "," + (310 - ((s[line.key] || 0) / max) * 300).toFixed(1));
        return '<polyline fill="none" stroke-width="2" stroke="' + line.color + '" points="' + pts.join(" ") + '"/>';
      }).join("");
    }

    function toast(message) {
      const el = document.createElement("div");
      el.className = "toast";
      el.textContent = message;
      document.getElementById("toasts").appendChild(el);
      setTimeout(() => el.remove(), 4000);
    }

    async function loadStatus() {
      const res = await fetch("/v1/realtime/granularity");
      const status = await res.json();
      select.innerHTML = status.options.map(g => '<option value="' + g + '">' + g + " min</option>").join("");
      select.value = String(status.granularity);
      statusEl.textContent = status.streaming ? "streaming" : "stream down";
    }

    select.addEventListener("change", async () => {
      const res = await fetch("/v1/realtime/granularity", {
        method: "PUT",
        headers: { "Content-Type": "application/json" },
        body: JSON.stringify({ granularity: Number(select.value) }),
      });
      if (!res.ok) toast((await res.json()).error || "operation failed");
      loadStatus();
    });

    function watch() {
      const proto = location.protocol === "https:" ? "wss://" : "ws://";
      const ws = new WebSocket(proto + location.host + "/v1/realtime/ws");
      ws.onmessage = ev => {
        const envelope = JSON.parse(ev.data);
        if (envelope.type === "snapshot") render(envelope.payload);
        if (envelope.type === "notification") { toast(envelope.payload.message); loadStatus(); }
      };
      ws.onclose = () => { statusEl.textContent = "watch closed, retrying"; setTimeout(watch, 2000); };
      ws.onopen = () => loadStatus();
    }

    loadStatus();
    watch();
  </script>
</body>
</html>
`
