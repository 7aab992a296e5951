package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HomeHandler serves the landing page and its script. The script ships from
// /static/ rather than inline because the HTML security policy only trusts
// 'self' for script sources.
type HomeHandler struct{}

func NewHomeHandler() *HomeHandler {
	return &HomeHandler{}
}

// Home renders the shortening form.
func (h *HomeHandler) Home(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, homePage)
}

// Script serves the landing page's JavaScript.
func (h *HomeHandler) Script(c *gin.Context) {
	c.Header("Content-Type", "application/javascript; charset=utf-8")
	c.String(http.StatusOK, homeScript)
}

const homePage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>zar &middot; URL Shortener</title>
    <style>
        :root {
            --ink: #1c2733;
            --muted: #5f6e7e;
            --line: #d9e0e7;
            --paper: #f6f8fa;
            --accent: #4f46e5;
            --accent-dark: #4338ca;
            --danger: #b3261e;
        }
        * { box-sizing: border-box; }
        html, body { margin: 0; padding: 0; }
        body {
            font-family: ui-sans-serif, system-ui, "Helvetica Neue", Arial, sans-serif;
            background: var(--paper);
            color: var(--ink);
            min-height: 100vh;
            display: grid;
            place-items: center;
        }
        main { width: min(560px, 92vw); padding: 32px 0 48px; }
        h1 {
            font-size: 2.2rem;
            letter-spacing: -0.02em;
            margin: 0 0 4px;
        }
        h1 span { color: var(--accent); }
        .tagline { color: var(--muted); margin: 0 0 28px; }
        .panel {
            background: #fff;
            border: 1px solid var(--line);
            border-radius: 10px;
            padding: 28px;
            box-shadow: 0 1px 2px rgba(28, 39, 51, 0.06);
        }
        .field { margin-bottom: 18px; }
        .field label {
            display: block;
            font-size: 0.82rem;
            font-weight: 600;
            text-transform: uppercase;
            letter-spacing: 0.04em;
            color: var(--muted);
            margin-bottom: 6px;
        }
        .field input, .field select {
            width: 100%;
            font: inherit;
            color: var(--ink);
            background: #fff;
            border: 1px solid var(--line);
            border-radius: 6px;
            padding: 11px 12px;
        }
        .field input:focus, .field select:focus {
            outline: 2px solid var(--accent);
            outline-offset: -1px;
            border-color: var(--accent);
        }
        .row { display: flex; gap: 14px; }
        .row .field { flex: 1; }
        button[type="submit"] {
            width: 100%;
            font: inherit;
            font-weight: 600;
            color: #fff;
            background: var(--accent);
            border: 0;
            border-radius: 6px;
            padding: 12px;
            cursor: pointer;
        }
        button[type="submit"]:hover { background: var(--accent-dark); }
        button[type="submit"]:disabled { opacity: 0.6; cursor: wait; }
        #result {
            display: none;
            margin-top: 22px;
            padding: 16px;
            border: 1px solid var(--line);
            border-left: 3px solid var(--accent);
            border-radius: 6px;
            background: #fbfbfe;
        }
        #result.show { display: block; }
        #result .hint { font-size: 0.8rem; color: var(--muted); margin: 0 0 6px; }
        .shortened { display: flex; align-items: center; gap: 10px; }
        .shortened a {
            color: var(--accent);
            font-weight: 600;
            word-break: break-all;
            text-decoration: none;
        }
        .shortened a:hover { text-decoration: underline; }
        #copy-btn {
            font: inherit;
            font-size: 0.82rem;
            color: var(--ink);
            background: #fff;
            border: 1px solid var(--line);
            border-radius: 6px;
            padding: 6px 12px;
            cursor: pointer;
            white-space: nowrap;
        }
        #copy-btn:hover { border-color: var(--accent); color: var(--accent); }
        #qr-link { display: none; margin: 10px 0 0; font-size: 0.85rem; color: var(--muted); }
        #qr-link.show { display: block; }
        #qr-link a { color: var(--accent); }
        #error {
            display: none;
            margin-top: 22px;
            padding: 12px 16px;
            border: 1px solid #ebc8c6;
            border-radius: 6px;
            background: #fdf3f2;
            color: var(--danger);
        }
        #error.show { display: block; }
        footer {
            margin-top: 26px;
            text-align: center;
            font-size: 0.82rem;
            color: var(--muted);
        }
        footer a { color: inherit; }
    </style>
</head>
<body>
    <main>
        <h1><span>&#47;&#47;</span> zar</h1>
        <p class="tagline">Short links with passwords, expiry, and QR codes.</p>

        <div class="panel">
            <form id="shorten-form">
                <div class="field">
                    <label for="url">Long URL</label>
                    <input type="url" id="url" name="url" placeholder="https://example.com/some/deep/path" required>
                </div>

                <div class="row">
                    <div class="field">
                        <label for="password">Password (optional)</label>
                        <input type="password" id="password" name="password" placeholder="None" minlength="4" maxlength="128">
                    </div>
                    <div class="field">
                        <label for="expiry">Expires</label>
                        <select id="expiry" name="expiry">
                            <option value="">Never</option>
                            <option value="1">After 1 day</option>
                            <option value="7">After 7 days</option>
                            <option value="30">After 30 days</option>
                        </select>
                    </div>
                </div>

                <button type="submit" id="submit-btn">Shorten</button>
            </form>

            <div id="result">
                <p class="hint">Your short link</p>
                <div class="shortened">
                    <a href="#" id="short-url" target="_blank" rel="noopener"></a>
                    <button id="copy-btn" type="button">Copy</button>
                </div>
                <p id="qr-link">QR code: <a href="#" id="qr-url" target="_blank" rel="noopener">download</a></p>
            </div>

            <div id="error" role="alert"></div>
        </div>

        <footer>
            <a href="/health">status</a>
        </footer>
    </main>

    <script src="/static/app.js" defer></script>
</body>
</html>`

const homeScript = `const form = document.getElementById('shorten-form');
const result = document.getElementById('result');
const errorBox = document.getElementById('error');
const shortUrl = document.getElementById('short-url');
const qrLink = document.getElementById('qr-link');
const qrUrl = document.getElementById('qr-url');
const submitBtn = document.getElementById('submit-btn');

form.addEventListener('submit', async (e) => {
    e.preventDefault();

    result.classList.remove('show');
    errorBox.classList.remove('show');
    submitBtn.disabled = true;
    submitBtn.textContent = 'Shortening…';

    const body = { url: document.getElementById('url').value };
    const password = document.getElementById('password').value;
    if (password) body.password = password;
    const days = Number(document.getElementById('expiry').value);
    if (days) {
        body.expires_at = new Date(Date.now() + days * 86400000).toISOString();
    }

    try {
        const response = await fetch('/api/v1/url', {
            method: 'POST',
            headers: { 'Content-Type': 'application/json' },
            body: JSON.stringify(body)
        });
        const data = await response.json();
        if (!response.ok) {
            throw new Error(data.detail || 'Could not shorten that URL');
        }

        shortUrl.href = data.short_url;
        shortUrl.textContent = data.short_url;
        if (data.qr_code_url) {
            qrUrl.href = data.qr_code_url;
            qrLink.classList.add('show');
        } else {
            qrLink.classList.remove('show');
        }
        result.classList.add('show');
    } catch (err) {
        errorBox.textContent = err.message;
        errorBox.classList.add('show');
    } finally {
        submitBtn.disabled = false;
        submitBtn.textContent = 'Shorten';
    }
});

document.getElementById('copy-btn').addEventListener('click', () => {
    navigator.clipboard.writeText(shortUrl.href).then(() => {
        const btn = document.getElementById('copy-btn');
        btn.textContent = 'Copied';
        setTimeout(() => { btn.textContent = 'Copy'; }, 1500);
    });
});
`
