package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/check-verifier/internal/ai"
	"github.com/zombor/check-verifier/internal/check"
	"github.com/zombor/check-verifier/internal/classify"
	"github.com/zombor/check-verifier/internal/pdfdoc"
)

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		repo     *Bolt
		store    *check.LocalStorage
		aiServer *ghttp.Server
		server   *check.Server
		ghServer *ghttp.Server
	)

	opinion := func(confidence float64) string {
		content := fmt.Sprintf(`{"conclusion":"looks fine","legitimacy":"legitimate","confidence":%v,"warnings":[],`+
			`"checkData":{"bank":"vtb","checkType":"UnknownTransfer"},"technicalDetails":{}}`, confidence)
		envelope, err := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": content}}},
		})
		Expect(err).NotTo(HaveOccurred())
		return string(envelope)
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()

		var err error
		repo, err = NewBolt(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = check.NewLocalStorage(filepath.Join(tempDir, "checks"))
		Expect(err).NotTo(HaveOccurred())

		aiServer = ghttp.NewServer()
		model, err := ai.NewOpenAI(aiServer.URL(), "key", "test-model", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		service := check.NewService(check.Dependencies{
			Extractor: pdfdoc.NewExtractor(),
			Text:      ai.NewTextVerifier(model),
			History:   repo,
			Storage:   store,
		}, check.Options{})
		server = check.NewServer(service, check.BasicAuth{}) // No auth for testing convenience

		ghServer = ghttp.NewServer()
	})

	AfterEach(func() {
		ghServer.Close()
		aiServer.Close()
		repo.Close()
	})

	upload := func(name string, data []byte) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", name)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghServer.URL()+"/api/verify", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("verifies a receipt, stores it and serves it back", func() {
		ghServer.AppendHandlers(server.ServeHTTP, server.ServeHTTP, server.ServeHTTP)
		aiServer.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/chat/completions"),
			ghttp.RespondWith(http.StatusOK, opinion(0.95)),
		))

		pdf, err := pdfdoc.RenderText("VTB", []string{"Transfer via SBP", "Amount 100 RUB"})
		Expect(err).NotTo(HaveOccurred())

		// --- Step 1: verify ---
		resp := upload("receipt.pdf", pdf)
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var outcomes []struct {
			FileName string                    `json:"fileName"`
			Report   *check.VerificationReport `json:"report"`
		}
		respBody, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(respBody, &outcomes)).To(Succeed(), string(respBody))
		Expect(outcomes).To(HaveLen(1))

		report := outcomes[0].Report
		Expect(report.Bank).To(Equal(classify.BankVTB))
		Expect(report.CheckType).To(Equal(classify.CheckUnknownTransfer))
		Expect(report.Results.FileSize.OK).To(BeTrue())
		Expect(report.VisionStatus).To(Equal(check.VisionSkipped))

		// The history entry and the file are persisted
		entries, err := repo.List(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].ID).To(Equal(report.ID))
		Expect(filepath.Join(tempDir, "checks", report.ID+"_receipt.pdf")).To(BeAnExistingFile())

		// --- Step 2: fetch the stored file ---
		fileResp, err := http.Get(ghServer.URL() + report.FileURL)
		Expect(err).NotTo(HaveOccurred())
		defer fileResp.Body.Close()
		Expect(fileResp.StatusCode).To(Equal(http.StatusOK))
		fileBody, err := io.ReadAll(fileResp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(fileBody).To(Equal(pdf))

		// --- Step 3: export the report ---
		exportResp, err := http.Get(ghServer.URL() + "/api/history/" + report.ID + "/report.pdf")
		Expect(err).NotTo(HaveOccurred())
		defer exportResp.Body.Close()
		Expect(exportResp.StatusCode).To(Equal(http.StatusOK))
		exported, err := io.ReadAll(exportResp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(bytes.HasPrefix(exported, []byte("%PDF"))).To(BeTrue())
	})

	It("stores nothing when the AI is unavailable", func() {
		ghServer.AppendHandlers(server.ServeHTTP)
		aiServer.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "bad gateway"))

		pdf, err := pdfdoc.RenderText("VTB", []string{"Transfer via SBP"})
		Expect(err).NotTo(HaveOccurred())

		resp := upload("receipt.pdf", pdf)
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

		entries, err := repo.List(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
})
