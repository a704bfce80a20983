package check

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/check-verifier/internal/classify"
)

type uploadPart struct {
	name        string
	contentType string
	data        string
}

func multipartBody(parts ...uploadPart) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+p.name+`"`)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		part, err := writer.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte(p.data))
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		history     *mockHistory
		storage     *mockStorage
		text        *mockText
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service := NewServiceWithDeps(Dependencies{
			Extractor: &mockExtractor{text: "ВТБ СБП"},
			Text:      text,
			History:   history,
			Storage:   storage,
			Bank:      &mockBank{},
			Exporter:  &mockExporter{},
		}, Options{MaxUploadSize: 64}, &sequenceIDGenerator{}, &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	post := func(parts ...uploadPart) *http.Response {
		body, contentType := multipartBody(parts...)
		resp, err := http.Post(ghttpServer.URL()+"/api/verify", contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).To(Succeed(), string(body))
	}

	BeforeEach(func() {
		history = &mockHistory{}
		storage = newMockStorage()
		text = newMockText()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("handleHealth", func() {
		It("should return status OK", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("handleVerify", func() {
		When("one PDF is uploaded", func() {
			It("should return status Created with the report", func() {
				resp := post(uploadPart{name: "чек.pdf", contentType: "application/pdf", data: "%PDF-1.4"})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var outcomes []outcomeResponse
				decode(resp, &outcomes)
				Expect(outcomes).To(HaveLen(1))
				Expect(outcomes[0].FileName).To(Equal("чек.pdf"))
				Expect(outcomes[0].Status).To(Equal(http.StatusCreated))
				Expect(outcomes[0].Report.Bank).To(Equal(classify.BankVTB))
				Expect(history.entries).To(HaveLen(1))
			})
		})

		When("the part has no content type", func() {
			It("should infer PDF from the extension", func() {
				resp := post(uploadPart{name: "scan.pdf", data: "%PDF-1.4"})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				resp.Body.Close()
			})
		})

		When("a non-PDF is uploaded", func() {
			It("should return Bad Request with a localized message", func() {
				resp := post(uploadPart{name: "photo.png", contentType: "image/png", data: "png"})
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var outcomes []outcomeResponse
				decode(resp, &outcomes)
				Expect(outcomes[0].Error).To(Equal("Поддерживаются только PDF файлы"))
				Expect(outcomes[0].Report).To(BeNil())
			})
		})

		When("the file is over the limit", func() {
			It("should return Request Entity Too Large", func() {
				resp := post(uploadPart{name: "big.pdf", contentType: "application/pdf", data: strings.Repeat("x", 65)})
				Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
				resp.Body.Close()
			})
		})

		When("some files fail", func() {
			It("should return status OK with per-file outcomes", func() {
				resp := post(
					uploadPart{name: "a.pdf", contentType: "application/pdf", data: "%PDF a"},
					uploadPart{name: "b.txt", contentType: "text/plain", data: "b"},
				)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var outcomes []outcomeResponse
				decode(resp, &outcomes)
				Expect(outcomes).To(HaveLen(2))
				Expect(outcomes[0].Status).To(Equal(http.StatusCreated))
				Expect(outcomes[1].Status).To(Equal(http.StatusBadRequest))
			})
		})

		When("no file is sent", func() {
			It("should return Bad Request", func() {
				body, contentType := multipartBody()
				resp, err := http.Post(ghttpServer.URL()+"/api/verify", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})

		When("the body is not multipart", func() {
			It("should return Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/verify", "application/json", strings.NewReader("{}"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("history routes", func() {
		BeforeEach(func() {
			history.entries = []StoredCheck{{
				ID:       "id-9",
				FileName: "old.pdf",
				FileURL:  "/api/history/id-9/file",
				Report:   VerificationReport{ID: "id-9", FileName: "old.pdf", VisionStatus: VisionSkipped},
			}}
			storage.files["id-9_old.pdf"] = []byte("%PDF old")
		})

		It("lists history", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/history")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

			var entries []StoredCheck
			decode(resp, &entries)
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ID).To(Equal("id-9"))
		})

		It("gets one check", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/history/id-9")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})

		It("returns Not Found for an unknown check", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/history/nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			var body map[string]string
			decode(resp, &body)
			Expect(body).To(HaveKeyWithValue("error", "Проверка не найдена"))
		})

		It("serves the uploaded file", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/history/id-9/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
			Expect(resp.Header.Get("Content-Disposition")).To(HavePrefix("inline"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("%PDF old"))
		})

		It("exports the report", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/history/id-9/report.pdf")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("report-id-9.pdf"))
		})

		It("clears history", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/history", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
			Expect(history.entries).To(BeEmpty())
			Expect(storage.files).To(BeEmpty())
		})
	})

	Describe("handleBankVerify", func() {
		It("returns the bank verification", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/bank/verify", "application/json",
				strings.NewReader(`{"bank":"vtb","operationId":"123"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body map[string]any
			decode(resp, &body)
			Expect(body).To(HaveKeyWithValue("verified", true))
		})

		It("rejects malformed JSON", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/bank/verify", "application/json", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/verify", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("DELETE"))
			resp.Body.Close()
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("rejects requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/history")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			resp.Body.Close()
		})

		It("rejects wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/history", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("accepts valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/history", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})

		It("leaves the health check open", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("unknown routes", func() {
		It("should return Not Found", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/nothing")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})
})
