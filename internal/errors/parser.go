package errors

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

type ErrorInfo struct {
	Code    string
	Message string
}

// ParseError turns a persistence or transport error into a code and a safe
// user message. Driver text never reaches the client.
func ParseError(err error, context string) ErrorInfo {
	if err == nil {
		return ErrorInfo{
			Code:    InternalServerError,
			Message: "Erro interno. Tente novamente em instantes.",
		}
	}

	errStrLower := strings.ToLower(err.Error())

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{
			Code:    ResourceNotFound,
			Message: getNotFoundMessage(context),
		}
	}

	// Postgres 23505, SQLite "UNIQUE constraint failed"
	if strings.Contains(errStrLower, "duplicate key") || strings.Contains(errStrLower, "unique constraint") {
		return parseDuplicateKeyError(errStrLower)
	}

	// Postgres 23502, SQLite "NOT NULL constraint failed"
	if strings.Contains(errStrLower, "not-null constraint") || strings.Contains(errStrLower, "not null constraint") {
		return parseNotNullError(errStrLower)
	}

	if strings.Contains(errStrLower, "connection refused") ||
		strings.Contains(errStrLower, "no such host") ||
		strings.Contains(errStrLower, "timeout") {
		return ErrorInfo{
			Code:    InternalExternalAPI,
			Message: "Falha ao conectar a um serviço externo. Tente novamente em instantes.",
		}
	}

	return ErrorInfo{
		Code:    InternalServerError,
		Message: getDefaultErrorMessage(context),
	}
}

func parseDuplicateKeyError(errLower string) ErrorInfo {
	if strings.Contains(errLower, "email") {
		return ErrorInfo{
			Code:    AuthEmailAlreadyExists,
			Message: "Este e-mail já está cadastrado",
		}
	}
	if strings.Contains(errLower, "identifier") {
		return ErrorInfo{
			Code:    ResourceConflict,
			Message: "Solicitação simultânea detectada. Tente novamente.",
		}
	}
	return ErrorInfo{
		Code:    ResourceAlreadyExists,
		Message: "Registro já existe",
	}
}

func parseNotNullError(errLower string) ErrorInfo {
	switch {
	case strings.Contains(errLower, "email"):
		return ErrorInfo{Code: ValidationRequired, Message: "O e-mail é obrigatório"}
	case strings.Contains(errLower, "password"):
		return ErrorInfo{Code: ValidationRequired, Message: "A senha é obrigatória"}
	case strings.Contains(errLower, "name"):
		return ErrorInfo{Code: ValidationRequired, Message: "O nome é obrigatório"}
	}
	return ErrorInfo{
		Code:    ValidationRequired,
		Message: "Campo obrigatório ausente",
	}
}

func getNotFoundMessage(context string) string {
	contextLower := strings.ToLower(context)

	if strings.Contains(contextLower, "user") {
		return "Usuário não encontrado"
	}
	if strings.Contains(contextLower, "code") {
		return "Código não encontrado"
	}
	return "Registro não encontrado"
}

func getDefaultErrorMessage(context string) string {
	contextLower := strings.ToLower(context)

	if strings.Contains(contextLower, "register") || strings.Contains(contextLower, "create") {
		return "Erro ao criar a conta. Tente novamente em instantes."
	}
	if strings.Contains(contextLower, "cleanup") {
		return "Erro ao limpar códigos antigos. Tente novamente em instantes."
	}
	return "Erro interno. Tente novamente em instantes."
}

// ParseValidationError maps binding failures to per-field messages keyed by
// the JSON field name. ok is false when err is not a validation error.
func ParseValidationError(err error) (fields map[string]string, ok bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}

	fields = make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			fields[name] = "Campo obrigatório"
		case "email":
			fields[name] = "E-mail inválido"
		case "min":
			fields[name] = "Deve ter pelo menos " + fe.Param() + " caracteres"
		case "max":
			fields[name] = "Deve ter no máximo " + fe.Param() + " caracteres"
		case "len":
			fields[name] = "Deve ter exatamente " + fe.Param() + " caracteres"
		case "numeric":
			fields[name] = "Deve conter apenas dígitos"
		default:
			fields[name] = "Valor inválido"
		}
	}
	return fields, true
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// ParseAndRespond parses err and writes it with the given status.
func ParseAndRespond(c interface{ JSON(int, interface{}) }, statusCode int, err error, context string) {
	errorInfo := ParseError(err, context)
	c.JSON(statusCode, ErrorResponse{
		Error:   errorInfo.Code,
		Message: errorInfo.Message,
	})
}
