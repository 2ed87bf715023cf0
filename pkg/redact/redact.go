// redact предоставляет утилиты безопасного редактирования чувствительных
// данных для логов (e-mail, токены, заголовки авторизации). Токены сессии
// в логи не попадают никогда: только признак наличия и длина.
package redact

import (
	"net/http"
	"strconv"
	"strings"
)

// Email маскирует e-mail для логирования.
//
// Правила:
//   - Строка должна содержать РОВНО один символ '@', иначе возвращается "***";
//   - Локальная часть заменяется на первые два символа (по рунам) + "***";
//   - Если длина локальной части ≤ 2 символов — возвращается "***@<domain>".
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token описывает токен без раскрытия значения: "[absent]" или "[len=N]".
func Token(s string) string {
	if s == "" {
		return "[absent]"
	}

	return "[len=" + strconv.Itoa(len(s)) + "]"
}

// sensitiveHeaders — заголовки, значения которых не логируются.
var sensitiveHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

// Header возвращает копию заголовков с замаскированными значениями
// Authorization/Cookie/Set-Cookie. Исходный http.Header не меняется.
func Header(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}

	for _, name := range sensitiveHeaders {
		if len(out.Values(name)) > 0 {
			out.Set(name, "[REDACTED]")
		}
	}

	return out
}
