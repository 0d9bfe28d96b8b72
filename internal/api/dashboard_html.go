package api

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>mysqlfanout dashboard</title>
<style>
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root{
  --bg:#0f1117;--bg-card:#161b22;--bg-card-hover:#1c2129;
  --border:#30363d;--text:#e1e4e8;--text-muted:#8b949e;
  --primary:#58a6ff;--green:#3fb950;--red:#f85149;--yellow:#d29922;
  --radius:8px;--radius-sm:4px;
}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;background:var(--bg);color:var(--text);line-height:1.5;min-height:100vh}
a{color:var(--primary);text-decoration:none}
.container{max-width:1100px;margin:0 auto;padding:24px}
header{display:flex;align-items:center;gap:16px;margin-bottom:24px}
.title{font-size:20px;font-weight:700}
.badge{display:inline-flex;align-items:center;gap:4px;padding:2px 10px;border-radius:12px;font-size:12px;font-weight:600;border:1px solid var(--border)}
.badge-healthy{color:var(--green);border-color:var(--green)}
.badge-unhealthy{color:var(--red);border-color:var(--red)}
.cards{display:grid;grid-template-columns:repeat(auto-fill,minmax(220px,1fr));gap:12px;margin-bottom:24px}
.card{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);padding:16px}
.card .label{color:var(--text-muted);font-size:12px;text-transform:uppercase;letter-spacing:.04em}
.card .value{font-size:22px;font-weight:700;margin-top:4px}
table{width:100%;border-collapse:collapse;background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);overflow:hidden}
th,td{text-align:left;padding:10px 14px;border-bottom:1px solid var(--border);font-size:14px}
th{color:var(--text-muted);font-weight:600;font-size:12px;text-transform:uppercase}
tr:last-child td{border-bottom:none}
.dot{display:inline-block;width:8px;height:8px;border-radius:50%;margin-right:6px}
.dot-healthy{background:var(--green)}
.dot-unhealthy{background:var(--red)}
.dot-unknown{background:var(--yellow)}
.muted{color:var(--text-muted)}
</style>
</head>
<body>
<div class="container">
  <header>
    <span class="title">mysqlfanout</span>
    <span id="overall-badge" class="badge muted">checking…</span>
  </header>

  <div class="cards">
    <div class="card"><div class="label">Uptime</div><div class="value" id="uptime">-</div></div>
    <div class="card"><div class="label">Delegates</div><div class="value" id="num-delegates">-</div></div>
    <div class="card"><div class="label">Reduce policy</div><div class="value" id="reduce-policy">-</div></div>
    <div class="card"><div class="label">Goroutines</div><div class="value" id="goroutines">-</div></div>
  </div>

  <table>
    <thead>
      <tr><th>Delegate</th><th>DB name</th><th>Status</th><th>Consecutive failures</th><th>Last check</th></tr>
    </thead>
    <tbody id="delegate-rows">
      <tr><td colspan="5" class="muted">loading…</td></tr>
    </tbody>
  </table>
</div>

<script>
async function refresh() {
  try {
    const [status, delegates] = await Promise.all([
      fetch('/status').then(r => r.json()),
      fetch('/delegates').then(r => r.json()),
    ]);

    document.getElementById('uptime').textContent = status.uptime_seconds + 's';
    document.getElementById('num-delegates').textContent = status.num_delegates;
    document.getElementById('reduce-policy').textContent = status.reduce_policy;
    document.getElementById('goroutines').textContent = status.goroutines;

    const rows = delegates.map(d => {
      const h = d.health || {};
      const statusClass = 'dot-' + (h.status === 1 ? 'healthy' : h.status === 2 ? 'unhealthy' : 'unknown');
      const statusText = h.status === 1 ? 'healthy' : h.status === 2 ? 'unhealthy' : 'unknown';
      const lastCheck = h.last_check && h.last_check !== '0001-01-01T00:00:00Z' ? new Date(h.last_check).toLocaleTimeString() : '-';
      return '<tr><td>' + d.host + ':' + d.port + '</td><td>' + d.dbname + '</td>' +
             '<td><span class="dot ' + statusClass + '"></span>' + statusText + '</td>' +
             '<td>' + (h.consecutive_failures || 0) + '</td><td>' + lastCheck + '</td></tr>';
    }).join('');
    document.getElementById('delegate-rows').innerHTML = rows || '<tr><td colspan="5" class="muted">no delegates configured</td></tr>';

    const overall = await fetch('/health').then(r => r.json());
    const badge = document.getElementById('overall-badge');
    badge.textContent = overall.status;
    badge.className = 'badge ' + (overall.status === 'healthy' ? 'badge-healthy' : 'badge-unhealthy');
  } catch (e) {
    document.getElementById('overall-badge').textContent = 'error';
  }
}

refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>
`
