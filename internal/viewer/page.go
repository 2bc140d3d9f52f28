package viewer

// indexHTML is the display page. The image is stretched to the window, so
// pointer coordinates are reported relative to its rendered size.
const indexHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>rscreen</title>
<style>
  html, body { margin: 0; height: 100%; background: #000; overflow: hidden; }
  #screen { width: 100vw; height: 100vh; object-fit: fill; display: block; user-select: none; }
  #status { position: fixed; top: 8px; left: 8px; color: #ccc; font: 14px sans-serif; }
</style>
</head>
<body>
<img id="screen" draggable="false" alt="">
<div id="status">Connecting...</div>
<script>
(function () {
  const img = document.getElementById("screen");
  const status = document.getElementById("status");
  let ws, url;

  function send(m) {
    if (ws && ws.readyState === WebSocket.OPEN) ws.send(JSON.stringify(m));
  }
  function resize() {
    send({t: "resize", w: img.clientWidth, h: img.clientHeight});
  }
  function pointer(t) {
    return function (e) {
      e.preventDefault();
      send({t: t, x: e.offsetX, y: e.offsetY});
    };
  }

  function connect() {
    ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
    ws.binaryType = "blob";
    ws.onopen = function () { status.textContent = "Waiting for frames..."; resize(); };
    ws.onmessage = function (e) {
      const next = URL.createObjectURL(e.data);
      img.onload = function () { if (url) URL.revokeObjectURL(url); url = next; };
      img.src = next;
      status.style.display = "none";
    };
    ws.onclose = function (e) {
      status.style.display = "";
      status.textContent = e.reason ? "Disconnected: " + e.reason : "Disconnected, retrying...";
      if (!e.reason) setTimeout(connect, 1000);
    };
  }

  img.addEventListener("mousemove", pointer("move"));
  // Only the primary (0) and secondary (2) buttons reach the host.
  const downs = {0: "down", 2: "rdown"}, ups = {0: "up", 2: "rup"};
  img.addEventListener("mousedown", function (e) { if (e.button in downs) pointer(downs[e.button])(e); });
  img.addEventListener("mouseup", function (e) { if (e.button in ups) pointer(ups[e.button])(e); });
  img.addEventListener("contextmenu", function (e) { e.preventDefault(); });
  window.addEventListener("keydown", function (e) { send({t: "kdown", k: e.keyCode}); });
  window.addEventListener("keyup", function (e) { send({t: "kup", k: e.keyCode}); });
  window.addEventListener("resize", resize);
  connect();
})();
</script>
</body>
</html>
`
