package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/nav"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	ctrl     *nav.Controller
	renderer *Renderer
}

// HandleIndex handles GET /: the navigator page.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "index", h.pageData(r.URL.Query().Get("flash")))
}

// HandleState handles GET /state: the current view as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.ctrl.View())
}

// HandleNavigate handles POST /navigate. An empty id returns to the root level.
func (h *Handlers) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	id := strings.TrimSpace(r.FormValue("id"))
	h.act(w, r, func(ctx context.Context) error { return h.ctrl.Navigate(ctx, id) })
}

// HandleUp handles POST /up.
func (h *Handlers) HandleUp(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.ctrl.Up)
}

// HandleReload handles POST /reload.
func (h *Handlers) HandleReload(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.ctrl.Reload)
}

// HandleCreate handles POST /domains: add a child of the active domain.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	name, desc := r.FormValue("name"), r.FormValue("description")
	h.act(w, r, func(ctx context.Context) error {
		_, err := h.ctrl.AddDomain(ctx, name, desc)
		return err
	})
}

// HandleUpdate handles POST /domains/{id}/edit. Empty form fields are left unchanged.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	name := ptrString(strings.TrimSpace(r.FormValue("name")))
	desc := ptrString(r.FormValue("description"))
	h.act(w, r, func(ctx context.Context) error {
		_, err := h.ctrl.UpdateDomain(ctx, id, name, desc)
		return err
	})
}

// HandleDelete handles DELETE /domains/{id} and POST /domains/{id}/delete: delete a
// domain and its subtree.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("domain ID is required"))
		return
	}
	h.act(w, r, func(ctx context.Context) error { return h.ctrl.DeleteDomain(ctx, id) })
}

// HandleSummarize handles POST /summarize: summarize the posts shown for the active
// domain.
func (h *Handlers) HandleSummarize(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, func(ctx context.Context) error {
		_, err := h.ctrl.Summarize(ctx)
		return err
	})
}

// act runs a controller action and responds with the updated navigator.
// Request errors are reported as errors. Remote failures are already recorded in
// the stores and show up in the rendered view.
func (h *Handlers) act(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) error) {
	flash := ""
	if err := fn(r.Context()); err != nil && !isStoreFailure(err) {
		navErr, ok := errors.As(err)
		if !ok || navErr.Code != errors.ErrInvalidRequest || isHTMX(r) || wantsJSON(r) {
			h.renderer.renderError(w, r, err)
			return
		}
		flash = navErr.Message
	}

	// HTMX request: swap the navigator in place
	if isHTMX(r) {
		h.renderer.renderBlock(w, http.StatusOK, "index", "navigator", h.pageData(flash))
		return
	}

	// JSON request
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, h.ctrl.View())
		return
	}

	// Default: redirect
	target := "/"
	if flash != "" {
		target = "/?flash=" + url.QueryEscape(flash)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handlers) pageData(flash string) IndexPageData {
	v := h.ctrl.View()
	title := "All topics"
	if n := len(v.Breadcrumb); n > 0 {
		title = v.Breadcrumb[n-1].Name
	}
	data := IndexPageData{
		PageData: PageData{
			Title:   title,
			Version: h.renderer.version,
		},
		View:    v,
		Diagram: h.renderer.renderDiagram(v),
		Flash:   flash,
	}
	if v.Summary != nil {
		data.SummaryHTML = renderMarkdown(*v.Summary)
	}
	return data
}

// isStoreFailure reports whether err is a remote failure already captured in store state.
func isStoreFailure(err error) bool {
	navErr, ok := errors.As(err)
	return ok && errors.UserMessage(navErr.Code) != ""
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// ptrString returns a pointer to s if non-empty, nil otherwise.
func ptrString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
