package response

import "net/http"

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrPhoneTaken         ErrCode = "PHONE_ALREADY_REGISTERED"
	ErrInvalidFaculty     ErrCode = "INVALID_FACULTY"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrAdminOnly          ErrCode = "ADMIN_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrNotFound       ErrCode = "NOT_FOUND"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrAttemptNotFound ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptExists   ErrCode = "ATTEMPT_EXISTS"
	ErrAttemptClosed   ErrCode = "ATTEMPT_CLOSED"
	ErrAttemptTimeOver ErrCode = "ATTEMPT_TIME_OVER"
	ErrUnknownItem     ErrCode = "UNKNOWN_ITEM"
	ErrResultNotReady  ErrCode = "RESULT_NOT_READY"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Неверный номер телефона."
	case ErrPhoneTaken:
		return "Этот номер телефона уже зарегистрирован."
	case ErrInvalidFaculty:
		return "Регистрация на этот факультет недоступна."
	case ErrSessionInvalidated:
		return "Сессия завершена: выполнен вход с другого устройства."
	case ErrTokenRequired:
		return "Требуется токен авторизации."
	case ErrTokenInvalid:
		return "Недействительный токен авторизации."
	case ErrAdminOnly:
		return "Доступно только администраторам."

	case ErrValidation:
		return "Ошибка проверки данных."
	case ErrInvalidID:
		return "Неверный формат идентификатора."
	case ErrInvalidPayload:
		return "Неверное тело запроса."
	case ErrNotFound:
		return "Запись не найдена."

	case ErrAttemptNotFound:
		return "Попытка не найдена."
	case ErrAttemptExists:
		return "Попытка уже существует."
	case ErrAttemptClosed:
		return "Попытка уже завершена."
	case ErrAttemptTimeOver:
		return "Время попытки истекло."
	case ErrUnknownItem:
		return "Вопрос или задача не входит в экзамен."
	case ErrResultNotReady:
		return "Идет проверка решений."

	case ErrRateLimitExceeded:
		return "Слишком много запросов. Повторите попытку позже."

	case ErrInternal:
		return "Внутренняя ошибка сервера."
	default:
		return "Непредвиденная ошибка."
	}
}

// HTTPStatus returns the status code an error code is served with.
func HTTPStatus(code ErrCode) int {
	switch code {
	case ErrInvalidCredentials, ErrSessionInvalidated, ErrTokenRequired, ErrTokenInvalid:
		return http.StatusUnauthorized
	case ErrAdminOnly:
		return http.StatusForbidden
	case ErrAttemptNotFound, ErrUnknownItem, ErrNotFound:
		return http.StatusNotFound
	case ErrPhoneTaken, ErrAttemptExists, ErrAttemptClosed, ErrAttemptTimeOver, ErrResultNotReady:
		return http.StatusConflict
	case ErrInvalidFaculty, ErrValidation, ErrInvalidID, ErrInvalidPayload:
		return http.StatusBadRequest
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
