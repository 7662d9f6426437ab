package generation_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/retrato-ai/retrato/internal/config"
	"github.com/retrato-ai/retrato/internal/generation"
)

var _ = Describe("generation client", func() {
	var cfg *config.Config

	BeforeEach(func() {
		var err error
		cfg, err = config.NewDefault()
		Expect(err).To(BeNil())
	})

	newClient := func(url string) *generation.Client {
		cfg.Service.Generation.URL = url
		cfg.Service.Generation.APIKey = "test-key"
		return generation.NewClient(cfg, &http.Client{})
	}

	Context("successful generation", func() {
		It("returns the decoded image", func() {
			payload := []byte("transformed-image-bytes")
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/v1/transformations"))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer test-key"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"data":"` + base64.StdEncoding.EncodeToString(payload) + `","mime_type":"image/jpeg"}`))
			}))
			defer ts.Close()

			result, err := newClient(ts.URL).Generate(context.TODO(), generation.Request{SourceURL: "https://example/img", Preset: "anime"})
			Expect(err).To(BeNil())
			Expect(result.Data).To(Equal(payload))
			Expect(result.MimeType).To(Equal("image/jpeg"))
		})

		It("defaults the mime type when the provider omits it", func() {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":"` + base64.StdEncoding.EncodeToString([]byte("x")) + `"}`))
			}))
			defer ts.Close()

			result, err := newClient(ts.URL).Generate(context.TODO(), generation.Request{})
			Expect(err).To(BeNil())
			Expect(result.MimeType).To(Equal("image/png"))
		})
	})

	Context("failure classification", func() {
		classify := func(status int, body string) *generation.Error {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(body))
			}))
			defer ts.Close()

			_, err := newClient(ts.URL).Generate(context.TODO(), generation.Request{})
			Expect(err).ToNot(BeNil())

			genErr, ok := err.(*generation.Error)
			Expect(ok).To(BeTrue())
			return genErr
		}

		It("classifies 429 as rate limited", func() {
			err := classify(http.StatusTooManyRequests, `{}`)
			Expect(err.Classification).To(Equal(generation.ClassificationRateLimited))
			Expect(err.Retryable()).To(BeTrue())
		})

		It("classifies 5xx as api error", func() {
			err := classify(http.StatusBadGateway, `{}`)
			Expect(err.Classification).To(Equal(generation.ClassificationAPIError))
			Expect(err.Retryable()).To(BeTrue())
		})

		It("classifies 400 as invalid image", func() {
			err := classify(http.StatusBadRequest, `{}`)
			Expect(err.Classification).To(Equal(generation.ClassificationInvalidImage))
			Expect(err.Retryable()).To(BeFalse())
		})

		It("classifies 422 as content policy", func() {
			err := classify(http.StatusUnprocessableEntity, `{}`)
			Expect(err.Classification).To(Equal(generation.ClassificationContentPolicy))
			Expect(err.Retryable()).To(BeFalse())
		})

		It("classifies 504 as timeout", func() {
			err := classify(http.StatusGatewayTimeout, `{}`)
			Expect(err.Classification).To(Equal(generation.ClassificationTimeout))
			Expect(err.Retryable()).To(BeTrue())
		})

		It("lets the provider error code override the status", func() {
			err := classify(http.StatusBadRequest, `{"error":{"code":"content_policy_violation","message":"nope"}}`)
			Expect(err.Classification).To(Equal(generation.ClassificationContentPolicy))
			Expect(err.Message).To(Equal("nope"))
		})

		It("treats an empty success payload as api error", func() {
			err := classify(http.StatusOK, `{"mime_type":"image/png"}`)
			Expect(err.Classification).To(Equal(generation.ClassificationAPIError))
		})
	})

	Context("timeouts", func() {
		It("classifies a context deadline as timeout", func() {
			release := make(chan struct{})
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				<-release
			}))
			defer func() {
				close(release)
				ts.Close()
			}()

			ctx, cancel := context.WithTimeout(context.TODO(), 20*time.Millisecond)
			defer cancel()

			_, err := newClient(ts.URL).Generate(ctx, generation.Request{})
			Expect(err).ToNot(BeNil())

			genErr, ok := err.(*generation.Error)
			Expect(ok).To(BeTrue())
			Expect(genErr.Classification).To(Equal(generation.ClassificationTimeout))
			Expect(genErr.Retryable()).To(BeTrue())
		})
	})
})
