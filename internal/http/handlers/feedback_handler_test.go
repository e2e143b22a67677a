package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestFeedback_LeaveListDelete(t *testing.T) {
	h, _ := realStack(t, &stubPublisher{})
	r := routes(h)

	w := serve(r, http.MethodPost, "/feedback", `{"text":"please add drafts folder"}`, asUser("alice"))
	var created FeedbackCreatedResponse
	decodeJSON(t, w, &created)
	if w.Code != http.StatusCreated || !created.Success || created.ID == "" {
		t.Fatalf("leave: %d %s", w.Code, w.Body.String())
	}

	if w := serve(r, http.MethodGet, "/feedback", "", asUser("alice")); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin list: %d", w.Code)
	}
	w = serve(r, http.MethodGet, "/feedback", "", asUser("admin"))
	var list FeedbackListResponse
	decodeJSON(t, w, &list)
	if w.Code != http.StatusOK || len(list.Feedback) != 1 || list.Feedback[0].Type != "suggestion" {
		t.Fatalf("admin list: %d %s", w.Code, w.Body.String())
	}

	if w := serve(r, http.MethodDelete, "/feedback/"+created.ID, "", asUser("alice")); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin delete: %d", w.Code)
	}
	if w := serve(r, http.MethodDelete, "/feedback/"+created.ID, "", asUser("admin")); w.Code != http.StatusNoContent {
		t.Fatalf("admin delete: %d", w.Code)
	}
	if w := serve(r, http.MethodDelete, "/feedback/"+uuid.NewString(), "", asUser("admin")); w.Code != http.StatusNotFound {
		t.Fatalf("unknown id: %d", w.Code)
	}
	if w := serve(r, http.MethodDelete, "/feedback/nope", "", asUser("admin")); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", w.Code)
	}
}

func TestFeedback_BindingErrors(t *testing.T) {
	h, _ := realStack(t, &stubPublisher{})
	r := routes(h)

	cases := []struct{ name, body string }{
		{"missing text", `{"type":"bug"}`},
		{"unknown type", `{"text":"hi","type":"praise"}`},
		{"too long", `{"text":"` + strings.Repeat("x", 5001) + `"}`},
		{"blank text", `{"text":"   "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(r, http.MethodPost, "/feedback", tc.body, nil)
			if er := decodeError(t, w); w.Code != http.StatusBadRequest || er.Code != ErrCodeBadRequest {
				t.Fatalf("got %d %+v", w.Code, er)
			}
		})
	}
}
