package browser

import "offer-filter/pkg/models"

// Identifiers shared by the live and static page implementations.
const (
	PanelID       = "offer-filter-summary"
	bindingName   = "offerFilterEvent"
	filteredAttr  = "data-offer-filtered"
	badgeAttr     = "data-offer-filter-badge"
	closeAttr     = models.PanelCloseAttr
	panelStyle    = "position:fixed;top:20px;right:20px;background:#00a441;color:#fff;padding:15px;border-radius:8px;font-family:system-ui,Arial,sans-serif;font-size:14px;box-shadow:0 4px 12px rgba(0,0,0,.3);z-index:999999;max-width:320px;transition:.3s all;"
	titleStyle    = "border:2px solid #00a441;border-radius:4px;padding:2px;"
	badgeStyle    = "background:#00a441;color:#fff;padding:2px 6px;border-radius:12px;font-size:11px;font-weight:700;margin-left:8px;display:inline-block;"
	hiddenStyle   = "display:none"
	panelSelector = "#" + PanelID
)

// observerScript installs the MutationObserver. Arguments: binding name,
// listing selector, page indicator selector (the selectors JSON-quoted).
const observerScript = `(() => {
  const emit = (kind) => { try { window[%[1]q](JSON.stringify({kind})); } catch (e) {} };
  if (window.__offerFilterObserver) window.__offerFilterObserver.disconnect();
  const listingSel = %[2]s;
  const indicatorSel = %[3]s;
  const touches = (el, sel) => (el.matches && el.matches(sel)) || (el.querySelector && el.querySelector(sel));
  const observer = new MutationObserver((mutations) => {
    let listings = false;
    let page = false;
    for (const m of mutations) {
      for (const node of m.addedNodes) {
        if (node.nodeType !== Node.ELEMENT_NODE) continue;
        if (node.closest && node.closest("#` + PanelID + `")) continue;
        if (touches(node, listingSel)) listings = true;
        if (touches(node, indicatorSel)) page = true;
      }
    }
    if (page) emit("page");
    else if (listings) emit("listings");
  });
  const start = () => observer.observe(document.body, {childList: true, subtree: true});
  if (document.body) start(); else document.addEventListener("DOMContentLoaded", start, {once: true});
  window.__offerFilterObserver = observer;
  return true;
})()`

const disconnectScript = `(() => {
  if (window.__offerFilterObserver) { window.__offerFilterObserver.disconnect(); window.__offerFilterObserver = null; }
  return true;
})()`

const setHiddenFunc = `function(hidden) { this.style.display = hidden ? "none" : ""; }`

const decorateFunc = `function(titleSel, badge) {
  const title = this.querySelector(titleSel);
  if (!title || title.getAttribute("` + filteredAttr + `") === "true") return false;
  title.style.cssText += "` + titleStyle + `";
  title.setAttribute("` + filteredAttr + `", "true");
  const span = document.createElement("span");
  span.setAttribute("` + badgeAttr + `", "true");
  span.textContent = badge;
  span.style.cssText = "` + badgeStyle + `";
  title.appendChild(span);
  return true;
}`

const undecorateFunc = `function(titleSel) {
  this.querySelectorAll(titleSel).forEach((title) => {
    if (title.getAttribute("` + filteredAttr + `") !== "true") return;
    title.style.border = "";
    title.style.borderRadius = "";
    title.style.padding = "";
    title.removeAttribute("` + filteredAttr + `");
    title.querySelectorAll("[` + badgeAttr + `]").forEach((b) => b.remove());
  });
}`

const clickFunc = `function() { this.click(); }`

// showPanelScript arguments: markup, binding name (both JSON-quoted).
const showPanelScript = `((markup, binding) => {
  let panel = document.getElementById("` + PanelID + `");
  if (!panel) {
    panel = document.createElement("div");
    panel.id = "` + PanelID + `";
    panel.style.cssText = "` + panelStyle + `";
    document.body.appendChild(panel);
  }
  panel.innerHTML = markup;
  const close = panel.querySelector("[` + closeAttr + `]");
  if (close) {
    close.addEventListener("click", () => {
      try { window[binding](JSON.stringify({kind: "dismiss"})); } catch (e) {}
    }, {once: true});
  }
  return true;
})(%s, %s)`

const removePanelScript = `(() => { const p = document.getElementById("` + PanelID + `"); if (p) p.remove(); return true; })()`

// textScript argument: selector (JSON-quoted).
const textScript = `(() => { const el = document.querySelector(%s); return el ? el.textContent : null; })()`
