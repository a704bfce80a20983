package check

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/zombor/check-verifier/internal/ai"
	"github.com/zombor/check-verifier/internal/pdfdoc"
)

var (
	ErrInvalidInputType = errors.New("only application/pdf uploads are supported")
	ErrFileTooLarge     = errors.New("file too large")
	ErrNotFound         = errors.New("check not found")
)

// FileTooLargeError is returned for uploads over the configured limit.
type FileTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file is %s, limit is %s", humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
}

func (e *FileTooLargeError) Is(target error) bool {
	return target == ErrFileTooLarge
}

// User facing messages.
const (
	msgInvalidInputType   = "Поддерживаются только PDF файлы"
	msgFileTooLarge       = "Файл слишком большой. Максимальный размер: %s"
	msgCorrupted          = "Файл PDF поврежден или имеет неверную структуру"
	msgEncrypted          = "PDF файл зашифрован. Пожалуйста, предоставьте незашифрованную версию"
	msgNoTextLayer        = "PDF файл не содержит текстового слоя или текст не может быть извлечен. Возможно, файл является сканированным документом."
	msgTextExtraction     = "Не удалось извлечь текст из PDF файла. Убедитесь, что файл не поврежден и содержит текстовый слой"
	msgServiceUnavailable = "Сервер временно недоступен (502 Bad Gateway). Пожалуйста, попробуйте позже."
	msgRateLimited        = "Превышен лимит запросов. Пожалуйста, подождите немного."
	msgMalformedResponse  = "Некорректный ответ от AI. Пожалуйста, попробуйте еще раз."
	msgAPIError           = "Произошла ошибка при обращении к серверу"
	msgTimeout            = "Превышено время ожидания ответа от сервера. Пожалуйста, попробуйте еще раз."
	msgUnknown            = "Неизвестная ошибка при обращении к серверу"
	msgNotFound           = "Проверка не найдена"
	msgInternal           = "Внутренняя ошибка сервера"
)

// UserMessage turns an error from Verify or the history operations into a
// localized message fit to show the user.
func UserMessage(err error) string {
	var tooLarge *FileTooLargeError
	var apiErr *ai.APIError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInputType):
		return msgInvalidInputType
	case errors.As(err, &tooLarge):
		return fmt.Sprintf(msgFileTooLarge, humanize.IBytes(uint64(tooLarge.Limit)))
	case errors.Is(err, pdfdoc.ErrCorrupted):
		return msgCorrupted
	case errors.Is(err, pdfdoc.ErrEncrypted):
		return msgEncrypted
	case errors.Is(err, pdfdoc.ErrNoTextLayer):
		return msgNoTextLayer
	case errors.Is(err, pdfdoc.ErrTextExtraction):
		return msgTextExtraction
	case errors.Is(err, ai.ErrServiceUnavailable):
		return msgServiceUnavailable
	case errors.Is(err, ai.ErrRateLimited):
		return msgRateLimited
	case errors.Is(err, ai.ErrMalformedResponse):
		return msgMalformedResponse
	case errors.As(err, &apiErr):
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return msgAPIError
	case errors.Is(err, ai.ErrTimeout):
		return msgTimeout
	case errors.Is(err, ai.ErrTransport):
		return msgUnknown
	case errors.Is(err, ErrNotFound):
		return msgNotFound
	}
	return msgInternal
}
