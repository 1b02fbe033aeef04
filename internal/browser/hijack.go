package browser

import (
	"net/http"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"mapkeep/internal/intercept"
	"mapkeep/internal/logging"
)

// hijack attaches a router to page. API requests are loaded through the
// pipeline's transport so filters answer them; documents have their
// embedded JSON state patched. Everything else continues untouched.
func (m *SessionManager) hijack(page *rod.Page) (*rod.HijackRouter, error) {
	m.pipeline.InstallHook(intercept.HookBrowser)

	api := m.pipeline.Client(m.base)
	plain := &http.Client{Transport: m.base}
	prefix := m.pipeline.Options().APIPrefix

	router := page.HijackRequests()
	err := router.Add("*", "", func(h *rod.Hijack) {
		h.OnError = func(err error) {
			logging.BrowserWarn("Hijacked request %s failed: %v", h.Request.URL(), err)
		}

		switch {
		case strings.HasPrefix(h.Request.URL().Path, prefix+"/"):
			if err := h.LoadResponse(api, true); err != nil {
				logging.BrowserWarn("API request %s %s failed: %v", h.Request.Method(), h.Request.URL(), err)
				h.Response.Fail(proto.NetworkErrorReasonFailed)
			}
		case h.Request.Type() == proto.NetworkResourceTypeDocument:
			if err := h.LoadResponse(plain, true); err != nil {
				h.Response.Fail(proto.NetworkErrorReasonFailed)
				return
			}
			if !strings.Contains(h.Response.Headers().Get("Content-Type"), "html") {
				return
			}
			patched, err := m.pipeline.PatchHTML(h.Request.Method(), h.Request.URL().String(), []byte(h.Response.Body()))
			if err != nil {
				logging.BrowserDebug("Leaving document %s unpatched: %v", h.Request.URL(), err)
				return
			}
			h.Response.SetBody(patched)
		default:
			h.ContinueRequest(&proto.FetchContinueRequest{})
		}
	})
	if err != nil {
		return nil, err
	}

	go router.Run()
	logging.BrowserDebug("Hijack router attached to %s", page.TargetID)
	return router, nil
}
