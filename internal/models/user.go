package models

import (
	"fmt"
	"strings"
	"time"
)

type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
	CreatedAt    time.Time
}

func (u *User) DisplayName() string {
	var parts []string
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		parts = append(parts, name)
	}
	if u.Username != "" {
		parts = append(parts, fmt.Sprintf("@%s", u.Username))
	}
	parts = append(parts, fmt.Sprintf("[%d]", u.ID))
	return strings.Join(parts, " ")
}
