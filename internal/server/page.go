package server

// indexHTML is the kiosk control page. It follows /api/events and posts
// intents to the /api endpoints.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Coffee Hunt</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
    <style>
        #win { text-align: center; }
        #win h1 { font-size: 3rem; margin-bottom: 0.25rem; }
        .controls button { margin: 0.25rem; }
        video { width: 100%; max-height: 50vh; }
    </style>
</head>
<body>
<main class="container">
    <h2>Coffee Hunt</h2>
    <p>State: <strong id="state">idle</strong> &middot; Camera: <span id="camera">back</span> <span id="rec"></span></p>

    <article id="win" hidden>
        <h1 id="win-title"></h1>
        <p id="win-message"></p>
    </article>

    <div class="controls">
        <button data-intent="session/start">Start</button>
        <button data-intent="session/stop" class="secondary">Stop</button>
        <button data-intent="camera/toggle" class="secondary">Switch Camera</button>
        <button data-intent="recording/start" class="outline">Start Recording</button>
        <button data-intent="recording/stop" class="outline">Stop Recording</button>
        <button data-intent="share" class="contrast">Share</button>
        <a id="download" role="button" class="contrast" href="/api/artifacts/download">Download</a>
    </div>

    <p id="notice"></p>
    <video id="preview" controls hidden></video>
</main>
<script>
    const controlFor = {
        "session/start": "start",
        "session/stop": "stop",
        "camera/toggle": "toggle_camera",
        "recording/start": "start_recording",
        "recording/stop": "stop_recording",
        "share": "share"
    };

    function render(st) {
        document.getElementById("state").textContent = st.state;
        document.getElementById("camera").textContent = st.camera_mode;
        document.getElementById("rec").textContent = st.recording ? "● REC" : "";
        document.getElementById("notice").textContent = st.notice || st.last_error || "";

        const win = document.getElementById("win");
        win.hidden = !st.win;
        if (st.win) {
            document.getElementById("win-title").textContent = st.win.title;
            document.getElementById("win-message").textContent = st.win.message;
        }

        document.querySelectorAll("button[data-intent]").forEach(b => {
            b.disabled = !st.controls[controlFor[b.dataset.intent]];
        });
        document.getElementById("download").hidden = !st.controls.download;

        const preview = document.getElementById("preview");
        if (st.artifact && preview.dataset.id !== st.artifact.id) {
            preview.dataset.id = st.artifact.id;
            preview.src = st.artifact.url;
            preview.hidden = false;
        }
    }

    document.querySelectorAll("button[data-intent]").forEach(b => {
        b.addEventListener("click", async () => {
            const res = await fetch("/api/" + b.dataset.intent, { method: "POST" });
            const body = await res.json();
            if (body.notice || body.error) {
                document.getElementById("notice").textContent = body.notice || body.error;
            }
        });
    });

    function connect() {
        const proto = location.protocol === "https:" ? "wss:" : "ws:";
        const ws = new WebSocket(proto + "//" + location.host + "/api/events");
        ws.onmessage = e => render(JSON.parse(e.data));
        ws.onclose = () => setTimeout(connect, 1000);
    }
    connect();
</script>
</body>
</html>
`
