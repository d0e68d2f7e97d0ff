package model

// User is a registered account. Password users carry a bcrypt hash; users
// who signed in through GitHub carry a GitHubID and may have no password.
type User struct {
	ID           int64  `json:"id"         db:"id"`
	Email        string `json:"email"      db:"email"`
	Username     string `json:"username"   db:"username"`
	FirstName    string `json:"first_name" db:"first_name"`
	LastName     string `json:"last_name"  db:"last_name"`
	Avatar       string `json:"avatar"     db:"avatar"` // media-relative path, empty when unset
	PasswordHash string `json:"-"          db:"password_hash"`
	GitHubID     int64  `json:"-"          db:"github_id"` // 0 when the account is not linked
	Timestamps
}

// UserView is a user as seen by a particular viewer.
type UserView struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Avatar       string `json:"avatar"`
	IsSubscribed bool   `json:"is_subscribed"`
}

// NewUserView projects u for a viewer whose subscription state is already
// known. Avatar is the public URL, not the stored path.
func NewUserView(u *User, avatarURL string, subscribed bool) UserView {
	return UserView{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Avatar:       avatarURL,
		IsSubscribed: subscribed,
	}
}

// AuthorView is an entry of the subscriptions list.
type AuthorView struct {
	UserView
	Recipes      []ShortRecipe `json:"recipes"`
	RecipesCount int           `json:"recipes_count"`
}
