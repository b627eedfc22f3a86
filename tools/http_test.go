package tools_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"flotilla/tools"
)

var _ = Describe("HTTP tools", func() {
	var server *httptest.Server

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	Describe("http_get", func() {
		It("returns the response body", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodGet))
				Expect(r.Header.Get("X-Trace")).To(Equal("t1"))
				io.WriteString(w, "payload")
			}))

			tool := &tools.HTTPGetTool{}
			result, err := tool.Invoke(context.Background(), map[string]any{
				"url":     server.URL,
				"headers": map[string]any{"X-Trace": "t1"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Success).To(BeTrue())
			Expect(result.Output).To(Equal("payload"))
		})

		It("reports 4xx and 5xx responses as failed results", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "gone", http.StatusNotFound)
			}))

			tool := &tools.HTTPGetTool{}
			result, err := tool.Invoke(context.Background(), map[string]any{"url": server.URL})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Success).To(BeFalse())
			Expect(result.Err).To(ContainSubstring("HTTP 404"))
		})

		It("requires a url", func() {
			tool := &tools.HTTPGetTool{}
			_, err := tool.Invoke(context.Background(), nil)
			Expect(err).To(MatchError(ContainSubstring("url is required")))
		})
	})

	Describe("http_post", func() {
		It("sends the body as JSON", func() {
			var received map[string]any
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))
				Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
				io.WriteString(w, "ok")
			}))

			tool := &tools.HTTPPostTool{}
			result, err := tool.Invoke(context.Background(), map[string]any{
				"url":  server.URL,
				"body": map[string]any{"name": "flotilla"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Output).To(Equal("ok"))
			Expect(received).To(HaveKeyWithValue("name", "flotilla"))
		})
	})
})
