package notify

const digestHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <title>Fare digest</title>
  <style>
    body { margin: 0; padding: 24px; background-color: #f3f4f6; font-family: -apple-system, "Segoe UI", Roboto, sans-serif; color: #111827; }
    .container { max-width: 640px; margin: 0 auto; background: #ffffff; border-radius: 8px; border: 1px solid #e5e7eb; }
    .header { padding: 20px 24px; background: #1f2937; color: #ffffff; }
    .section { padding: 16px 24px; border-top: 1px solid #f3f4f6; }
    .section-title { font-size: 11px; font-weight: 700; color: #6b7280; text-transform: uppercase; letter-spacing: 0.1em; margin-bottom: 12px; }
    table { width: 100%; font-size: 14px; border-collapse: collapse; }
    td { padding: 6px 8px 6px 0; }
    .price { font-weight: 700; }
    .muted { color: #6b7280; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <div>Fare digest</div>
      <div class="muted">{{.GeneratedAt.Format "02 Jan 2006 15:04 MST"}} &middot; {{.Valid}} valid deals</div>
    </div>

    {{if .Featured}}
    <div class="section">
      <div class="section-title">Featured</div>
      <table>
        {{range .Featured}}
        <tr>
          <td>{{.Origin}} &rarr; {{.Destination}}</td>
          <td class="price">${{.ReferencePrice}}</td>
          <td class="muted">usual ${{.EstimatedUsualPrice}}, {{pct .DiscountPct}} off</td>
          <td class="muted">{{.FlexCount}} dates, {{.FirstFlexDate}} to {{.LastFlexDate}}</td>
        </tr>
        {{end}}
      </table>
    </div>
    {{end}}

    {{range .Bundles}}
    <div class="section">
      <div class="section-title">{{.Origin}} to {{.Region}}</div>
      <table>
        {{range .Deals}}
        <tr>
          <td>{{.Destination}}</td>
          <td class="price">${{.ReferencePrice}}</td>
          <td class="muted">{{pct .DiscountPct}} off, {{.FlexCount}} dates</td>
          <td>{{if .SimilarDates}}{{with index .SimilarDates 0}}{{if .URL}}<a href="{{.URL}}">search</a>{{end}}{{end}}{{end}}</td>
        </tr>
        {{end}}
      </table>
    </div>
    {{end}}
  </div>
</body>
</html>`
