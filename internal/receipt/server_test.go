package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		model       *mockModel
		service     *Service
		config      ServerConfig
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, config, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	postJSON := func(path string, body any) *http.Response {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.Post(ghttpServer.URL()+path, "application/json", bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	postFile := func(path, filename string, data []byte) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghttpServer.URL()+path, writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decodeError := func(resp *http.Response) string {
		defer resp.Body.Close()
		var body map[string]string
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return body["error"]
	}

	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("fake jpeg"))

	BeforeEach(func() {
		model = &mockModel{extractReply: receiptReply}
		service = NewServiceWithDeps(model, NewSearchVerifier(model), &sequenceIDGenerator{})
		config = ServerConfig{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleHealth", func() {
		It("should report ok", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(MatchJSON(`{"status": "ok"}`))
		})
	})

	Describe("handleExtractItems", func() {
		When("a JSON body carries a data URI", func() {
			It("should return the extracted items", func() {
				resp := postJSON("/api/items", map[string]string{"image": dataURI})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var items []LineItem
				Expect(json.NewDecoder(resp.Body).Decode(&items)).To(Succeed())
				Expect(items).To(HaveLen(3))
				Expect(items[0].ID).To(Equal("item-1"))
				Expect(items[0].Deposit).To(Equal(ptr(0.10)))
			})

			It("should pass the decoded image to the model", func() {
				resp := postJSON("/api/items", map[string]string{"image": dataURI})
				resp.Body.Close()
				Expect(model.requests).To(HaveLen(1))
				Expect(model.requests[0].Image.MIMEType).To(Equal("image/jpeg"))
				Expect(model.requests[0].Image.Data).To(Equal([]byte("fake jpeg")))
			})
		})

		When("a JSON body carries a URL", func() {
			It("should forward the URL without downloading it", func() {
				resp := postJSON("/api/items", map[string]string{"image": "https://example.com/receipt.png"})
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(model.requests[0].Image.URL).To(Equal("https://example.com/receipt.png"))
				Expect(model.requests[0].Image.MIMEType).To(Equal("image/png"))
			})
		})

		When("a file is uploaded", func() {
			It("should extract items from the upload", func() {
				resp := postFile("/api/items", "receipt.jpg", []byte("fake jpeg"))
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(model.requests[0].Image.MIMEType).To(Equal("image/jpeg"))
			})
		})

		When("the summary is requested", func() {
			It("should wrap items with totals", func() {
				resp := postJSON("/api/items?summary=true", map[string]string{"image": dataURI})
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var body extractResponse
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body.Items).To(HaveLen(3))
				Expect(body.Summary.Deposit).To(Equal(0.10))
				Expect(body.Summary.Discount).To(Equal(-2.00))
			})
		})

		When("automatic verification is requested", func() {
			BeforeEach(func() {
				model.verifyReply = `[{"index": 1, "originalName": "ORG MLK", "verifiedName": "Organic Milk", "found": true}]`
			})

			It("should apply grounded resolutions", func() {
				resp := postJSON("/api/items?autoVerify=true", map[string]string{"image": dataURI})
				defer resp.Body.Close()

				var items []LineItem
				Expect(json.NewDecoder(resp.Body).Decode(&items)).To(Succeed())
				Expect(items[0].Name).To(Equal("Organic Milk"))
				Expect(items[0].NeedsVerification).To(BeFalse())
			})
		})

		When("a catalog verifier is configured", func() {
			var calls int

			BeforeEach(func() {
				calls = 0
				config.Verifier = VerifyFunc(func(ctx context.Context, name string, vc VerificationContext) (*VerificationResult, error) {
					calls++
					return &VerificationResult{VerifiedName: strings.ToLower(name)}, nil
				})
				setupServer()
			})

			It("should verify flagged items through it", func() {
				resp := postJSON("/api/items", map[string]string{"image": dataURI})
				defer resp.Body.Close()

				var items []LineItem
				Expect(json.NewDecoder(resp.Body).Decode(&items)).To(Succeed())
				Expect(calls).To(Equal(2))
				Expect(items[0].Name).To(Equal("org mlk"))
			})

			It("should skip it when the request opts out", func() {
				resp := postJSON("/api/items?catalog=false", map[string]string{"image": dataURI})
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(calls).To(Equal(0))
			})
		})

		When("the body is invalid", func() {
			It("should return bad request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/items", "application/json", strings.NewReader("{"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp)).To(ContainSubstring("invalid request body"))
			})
		})

		When("the image is missing", func() {
			It("should return bad request", func() {
				resp := postJSON("/api/items", map[string]string{"image": ""})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp)).To(Equal("image is required"))
			})
		})

		When("the image is unrecognizable", func() {
			It("should return bad request", func() {
				resp := postJSON("/api/items", map[string]string{"image": "not an image"})
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(model.requests).To(BeEmpty())
			})
		})

		When("no file is uploaded", func() {
			It("should return bad request", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("other", "value")).To(Succeed())
				Expect(writer.Close()).To(Succeed())

				resp, err := http.Post(ghttpServer.URL()+"/api/items", writer.FormDataContentType(), body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp)).To(Equal("no file was selected"))
			})
		})

		When("the model reply cannot be parsed", func() {
			BeforeEach(func() {
				model.extractReply = "no items here"
			})

			It("should return unprocessable entity", func() {
				resp := postJSON("/api/items", map[string]string{"image": dataURI})
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(decodeError(resp)).To(ContainSubstring("no items here"))
			})
		})

		When("the model call fails", func() {
			BeforeEach(func() {
				model.extractErr = errors.New("quota exceeded")
			})

			It("should return bad gateway", func() {
				resp := postJSON("/api/items", map[string]string{"image": dataURI})
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(decodeError(resp)).To(ContainSubstring("quota exceeded"))
			})
		})

		When("the model call times out", func() {
			BeforeEach(func() {
				model.extractErr = context.DeadlineExceeded
				config.Timeout = time.Second
				setupServer()
			})

			It("should return gateway timeout", func() {
				resp := postJSON("/api/items", map[string]string{"image": dataURI})
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusGatewayTimeout))
			})
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			config.BasicAuth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp := postJSON("/api/items", map[string]string{"image": dataURI})
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			Expect(model.requests).To(BeEmpty())
		})

		It("should accept valid credentials", func() {
			data, err := json.Marshal(map[string]string{"image": dataURI})
			Expect(err).NotTo(HaveOccurred())
			req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/api/items", bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			req.SetBasicAuth("user", "pass")

			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		})

		It("should leave the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/items", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})
})
