package models

// Роли пользователя на стороне API.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// UserProfile — профиль текущего пользователя (GET /auth/me/).
// Сессия заменяет его целиком и никогда не мутирует по полям.
type UserProfile struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	Username  string  `json:"username"`
	FullName  string  `json:"full_name"`
	Avatar    *string `json:"avatar"`
	Bio       string  `json:"bio"`
	Role      string  `json:"role"`
	Phone     string  `json:"phone"`
	Location  string  `json:"location"`
	Website   string  `json:"website"`
	LinkedIn  string  `json:"linkedin"`
	Twitter   string  `json:"twitter"`
	GitHub    string  `json:"github"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// Clone возвращает глубокую копию профиля (включая Avatar).
func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}

	out := *u
	if u.Avatar != nil {
		avatar := *u.Avatar
		out.Avatar = &avatar
	}

	return &out
}

// ProfileUpdate — изменяемые поля профиля (PUT /auth/profile/).
// nil-поля не отправляются.
type ProfileUpdate struct {
	FullName *string `json:"full_name,omitempty"`
	Bio      *string `json:"bio,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Location *string `json:"location,omitempty"`
	Website  *string `json:"website,omitempty"`
	LinkedIn *string `json:"linkedin,omitempty"`
	Twitter  *string `json:"twitter,omitempty"`
	GitHub   *string `json:"github,omitempty"`
}

// Empty сообщает, что в обновлении нет ни одного поля.
func (p ProfileUpdate) Empty() bool {
	return p.FullName == nil && p.Bio == nil && p.Phone == nil && p.Location == nil &&
		p.Website == nil && p.LinkedIn == nil && p.Twitter == nil && p.GitHub == nil
}
