// models — модели внешнего REST API сайта (auth-часть) и состояния сессии.
// JSON-теги повторяют контракт удалённого API один в один.
package models

// TokenPair — пара непрозрачных bearer-токенов, выдаваемая API.
// Содержимое токенов клиентом не разбирается.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// LoginRequest — тело POST /auth/login/.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterInput — поля регистрации (тело POST /auth/register/).
type RegisterInput struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FullName        string `json:"full_name,omitempty"`
}

// RegisterResponse — ответ POST /auth/register/.
type RegisterResponse struct {
	User    UserProfile `json:"user"`
	Tokens  TokenPair   `json:"tokens"`
	Message string      `json:"message"`
}

// RefreshRequest — тело POST /auth/token/refresh/ и POST /auth/logout/.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse — ответ POST /auth/token/refresh/.
type RefreshResponse struct {
	Access string `json:"access"`
}

// ChangePasswordRequest — тело PUT /auth/profile/password/.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// SessionState — снимок состояния сессии для UI.
// User == nil при Loading == false означает «не аутентифицирован».
type SessionState struct {
	User    *UserProfile `json:"user"`
	Loading bool         `json:"loading"`
}
