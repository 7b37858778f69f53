package model

// Account is the portion of the GitHub /user response we care about.
// GitHub returns a much larger object; only these fields are decoded.
type Account struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}
