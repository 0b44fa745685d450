package report

// reportCSS styles both dashboard themes. Accents use oklch(), which the
// export pipeline resolves to static colors before rasterization.
const reportCSS = `
:root {
  --accent: oklch(0.65 0.12 250);
  --accent-soft: oklch(from var(--accent) calc(l + 0.25) c h);
}
body { margin: 0; font-family: Inter, system-ui, sans-serif; }
body.theme-light { background: #f8fafc; color: #0f172a; }
body.theme-dark { background: rgb(15, 23, 42); color: #e2e8f0; }

#report-root { max-width: 1400px; margin: 0 auto; padding: 24px; }

.report-header { display: flex; align-items: baseline; gap: 16px; position: sticky; top: 0; }
.report-header h1 { font-size: 28px; margin: 0; }
.report-header .ticker { color: var(--accent); }
.cost-badge {
  font-size: 12px;
  padding: 2px 10px;
  border-radius: 999px;
  background: var(--accent-soft);
  color: oklch(0.3 0.05 250);
}

#analysis-grid { display: grid; grid-template-columns: repeat(2, 1fr); gap: 20px; margin-top: 24px; }

.card {
  border-radius: 12px;
  padding: 18px;
  border: 1px solid oklch(0.85 0.02 250);
  transition: box-shadow 0.2s;
}
body.theme-light .card { background: #ffffff; }
body.theme-dark .card { background: rgb(30, 41, 59); border-color: oklch(0.35 0.03 250); }
.card h2 { margin: 0 0 12px; font-size: 18px; color: var(--accent); }

.ai-content { animation: fade-in 0.3s ease-in; }
.ai-content table { width: 100%; border-collapse: collapse; font-size: 13px; }
.ai-content th, .ai-content td { border: 1px solid oklch(0.8 0.02 250); padding: 6px 8px; text-align: left; }
.ai-content a { color: var(--accent); }
.citations { font-size: 12px; opacity: 0.8; }

.placeholder { opacity: 0.5; font-style: italic; }

@keyframes fade-in { from { opacity: 0; } to { opacity: 1; } }
`
