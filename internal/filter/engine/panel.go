package engine

import (
	"bytes"
	"context"
	"html/template"

	"offer-filter/internal"
	"offer-filter/internal/config"
	"offer-filter/internal/settings"
	"offer-filter/pkg/models"
)

var panelTemplate = template.Must(template.New("panel").Parse(
	`<div style="font-weight:700;margin-bottom:8px;">🔍 Auto Filter {{.Status}}</div>
<div>✅ Showing: {{.Stats.Filtered}}</div>
<div>❌ Hidden: {{.Stats.Hidden}}</div>
<div>📦 Total: {{.Stats.Total}}</div>
<div style="margin-top:8px;font-size:12px;opacity:.9;">📄 Page: {{.Page}} (started: {{.Nav.StartingPage}})</div>
<div style="margin-top:4px;font-size:12px;opacity:.9;">🔍 Pages checked: {{.Nav.PagesChecked}}/{{.MaxPages}}</div>
<div style="margin-top:8px;font-size:11px;opacity:.85;">Criteria: &gt;{{.Settings.MinOpinions}} opinions &amp; &gt;{{.Settings.MinRating}} rating</div>
<div style="margin-top:4px;font-size:11px;opacity:.8;">🔄 Auto-pagination {{if .Settings.AutoPagination}}enabled{{else}}disabled{{end}}</div>
<div style="margin-top:4px;font-size:11px;opacity:.8;">🚫 Sponsored hidden: {{if .Settings.HideSponsored}}yes{{else}}no{{end}}</div>
<button ` + models.PanelCloseAttr + ` style="position:absolute;top:5px;right:8px;background:none;border:none;color:#fff;font-size:16px;cursor:pointer;" title="{{.CloseTitle}}">×</button>`))

type panelData struct {
	Status     string
	Stats      models.FilterStats
	Page       int
	Nav        models.NavState
	MaxPages   int
	Settings   settings.Settings
	CloseTitle string
}

// updatePanel re-renders the status panel. An empty status describes the last pass.
func (e *Engine) updatePanel(ctx context.Context, status string) {
	if status == "" {
		status = "Searching…"
		if e.stats.Filtered > 0 {
			status = "Active"
		}
	}
	e.message = status

	if !e.settings.ShowSummary {
		if err := e.page.RemovePanel(ctx); err != nil {
			internal.Log.WithError(err).Warn("Failed to remove status panel")
		}
		return
	}

	e.pageNum = e.currentPage(ctx)
	markup, err := e.renderPanel(status)
	if err != nil {
		internal.Log.WithError(err).Error("Failed to render status panel")
		return
	}
	if err := e.page.ShowPanel(ctx, markup); err != nil {
		internal.Log.WithError(err).Warn("Failed to show status panel")
	}
}

func (e *Engine) renderPanel(status string) (string, error) {
	closeTitle := "Hide this panel"
	if e.opts.DismissAction == config.DismissDisable {
		closeTitle = "Turn the filter off"
	}

	var buf bytes.Buffer
	err := panelTemplate.Execute(&buf, panelData{
		Status:     status,
		Stats:      e.stats,
		Page:       e.pageNum,
		Nav:        e.nav,
		MaxPages:   e.maxPages(),
		Settings:   e.settings,
		CloseTitle: closeTitle,
	})
	return buf.String(), err
}
