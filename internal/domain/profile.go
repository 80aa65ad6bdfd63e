package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxNicknameRunes bounds the public nickname.
const MaxNicknameRunes = 60

// Profile holds the account fields users can edit.
type Profile struct {
	UserID    string
	FirstName string
	LastName  string
	Nickname  *string
	UpdatedAt time.Time
}

// ProfileWrite is a merge-upsert of a profile. Nil fields are preserved; an empty Nickname clears it.
type ProfileWrite struct {
	UserID    string
	FirstName *string
	LastName  *string
	Nickname  *string
}

// SanitizeNickname trims and truncates a nickname; the empty string means "no nickname".
func SanitizeNickname(raw string) string {
	nick := strings.TrimSpace(raw)
	if utf8.RuneCountInString(nick) > MaxNicknameRunes {
		nick = strings.TrimSpace(string([]rune(nick)[:MaxNicknameRunes]))
	}
	return nick
}

// PublicName is the name shown in the community feed.
func (p *Profile) PublicName() string {
	if p != nil && p.Nickname != nil {
		if nick := SanitizeNickname(*p.Nickname); nick != "" {
			return nick
		}
	}
	return AnonymousName
}

// ViewerName picks the label for the signed-in viewer: nickname, then identity display name,
// then the local part of the email, then "Member".
func ViewerName(p *Profile, displayName, email string) string {
	if p != nil && p.Nickname != nil {
		if nick := SanitizeNickname(*p.Nickname); nick != "" {
			return nick
		}
	}
	if name := strings.TrimSpace(displayName); name != "" {
		return name
	}
	if local, _, _ := strings.Cut(strings.TrimSpace(email), "@"); local != "" {
		return local
	}
	return "Member"
}
