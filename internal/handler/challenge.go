package handler

import (
	"html/template"

	"github.com/gin-gonic/gin"
)

// challengeTmpl is the password gate for protected links. The form contract
// is fixed: a "password" field posted to /api/v1/{short_code}/verify.
var challengeTmpl = template.Must(template.New("challenge").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Protected link &middot; zar</title>
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
        .panel {
            width: min(420px, 92vw);
            background: #fff;
            border: 1px solid var(--line);
            border-radius: 10px;
            padding: 32px 28px;
            box-shadow: 0 1px 2px rgba(28, 39, 51, 0.06);
        }
        .lock { font-size: 2rem; text-align: center; margin-bottom: 8px; }
        h1 {
            font-size: 1.25rem;
            text-align: center;
            margin: 0 0 4px;
            letter-spacing: -0.01em;
        }
        .hint {
            text-align: center;
            color: var(--muted);
            font-size: 0.9rem;
            margin: 0 0 22px;
        }
        .alert {
            margin: 0 0 18px;
            padding: 10px 14px;
            border: 1px solid #ebc8c6;
            border-radius: 6px;
            background: #fdf3f2;
            color: var(--danger);
            font-size: 0.88rem;
            text-align: center;
        }
        label {
            display: block;
            font-size: 0.82rem;
            font-weight: 600;
            text-transform: uppercase;
            letter-spacing: 0.04em;
            color: var(--muted);
            margin-bottom: 6px;
        }
        input[type="password"] {
            width: 100%;
            font: inherit;
            color: var(--ink);
            border: 1px solid var(--line);
            border-radius: 6px;
            padding: 11px 12px;
        }
        input[type="password"]:focus {
            outline: 2px solid var(--accent);
            outline-offset: -1px;
            border-color: var(--accent);
        }
        button {
            width: 100%;
            font: inherit;
            font-weight: 600;
            color: #fff;
            background: var(--accent);
            border: 0;
            border-radius: 6px;
            padding: 12px;
            margin-top: 18px;
            cursor: pointer;
        }
        button:hover { background: var(--accent-dark); }
    </style>
</head>
<body>
    <div class="panel">
        <div class="lock">&#128274;</div>
        <h1>This link is protected</h1>
        <p class="hint">Enter the password to continue</p>
{{if .Error}}        <div class="alert" role="alert">Incorrect password, try again.</div>
{{end}}        <form method="POST" action="/api/v1/{{.ShortCode}}/verify">
            <label for="password">Password</label>
            <input type="password" id="password" name="password" autofocus required>
            <button type="submit">Unlock</button>
        </form>
    </div>
</body>
</html>`))

type challengeData struct {
	ShortCode string
	Error     bool
}

// renderChallenge writes the password page: 200 on first sight, 401 after a
// failed attempt.
func renderChallenge(c *gin.Context, status int, shortCode string, failed bool) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	_ = challengeTmpl.Execute(c.Writer, challengeData{ShortCode: shortCode, Error: failed})
}
