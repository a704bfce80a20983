package check

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/check-verifier/internal/ai"
	"github.com/zombor/check-verifier/internal/pdfdoc"
)

var _ = Describe("UserMessage", func() {
	DescribeTable("maps error kinds to messages",
		func(err error, expected string) {
			Expect(UserMessage(err)).To(Equal(expected))
		},
		Entry("nil", nil, ""),
		Entry("invalid type", fmt.Errorf("%w: got %q", ErrInvalidInputType, "image/png"), "Поддерживаются только PDF файлы"),
		Entry("too large", &FileTooLargeError{Size: 11 << 20, Limit: 10 << 20}, "Файл слишком большой. Максимальный размер: 10 MiB"),
		Entry("corrupted", fmt.Errorf("extracting text: %w: %w", pdfdoc.ErrTextExtraction, pdfdoc.ErrCorrupted), msgCorrupted),
		Entry("encrypted", fmt.Errorf("%w: %w", pdfdoc.ErrTextExtraction, pdfdoc.ErrEncrypted), msgEncrypted),
		Entry("no text layer", fmt.Errorf("%w: %w", pdfdoc.ErrTextExtraction, pdfdoc.ErrNoTextLayer), msgNoTextLayer),
		Entry("generic extraction", pdfdoc.ErrTextExtraction, msgTextExtraction),
		Entry("service unavailable", fmt.Errorf("verifying text: %w", ai.ErrServiceUnavailable), msgServiceUnavailable),
		Entry("rate limited", ai.ErrRateLimited, msgRateLimited),
		Entry("malformed", ai.ErrMalformedResponse, msgMalformedResponse),
		Entry("vendor message", fmt.Errorf("verifying text: %w", &ai.APIError{Status: 401, Message: "invalid api key"}), "invalid api key"),
		Entry("vendor without message", &ai.APIError{Status: 500}, msgAPIError),
		Entry("timeout", fmt.Errorf("%w: deadline", ai.ErrTimeout), msgTimeout),
		Entry("transport", fmt.Errorf("%w: refused", ai.ErrTransport), msgUnknown),
		Entry("not found", fmt.Errorf("getting check: %w", ErrNotFound), "Проверка не найдена"),
		Entry("anything else", errors.New("boom"), "Внутренняя ошибка сервера"),
	)
})

var _ = Describe("FileTooLargeError", func() {
	It("matches ErrFileTooLarge", func() {
		Expect(errors.Is(&FileTooLargeError{Size: 2, Limit: 1}, ErrFileTooLarge)).To(BeTrue())
	})

	It("describes both sizes", func() {
		err := &FileTooLargeError{Size: 12 << 20, Limit: 10 << 20}
		Expect(err.Error()).To(Equal("file is 12 MiB, limit is 10 MiB"))
	})
})

var _ = Describe("statusFor", func() {
	DescribeTable("maps error kinds to HTTP statuses",
		func(err error, expected int) {
			Expect(statusFor(err)).To(Equal(expected))
		},
		Entry("invalid type", ErrInvalidInputType, 400),
		Entry("too large", &FileTooLargeError{Size: 2, Limit: 1}, 413),
		Entry("extraction", fmt.Errorf("%w: %w", pdfdoc.ErrTextExtraction, pdfdoc.ErrEncrypted), 422),
		Entry("rate limited", ai.ErrRateLimited, 429),
		Entry("timeout", ai.ErrTimeout, 504),
		Entry("vendor error", &ai.APIError{Status: 401}, 502),
		Entry("unavailable", ai.ErrServiceUnavailable, 502),
		Entry("not found", ErrNotFound, 404),
		Entry("anything else", errors.New("boom"), 500),
	)
})
