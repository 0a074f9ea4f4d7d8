package domain

import (
	"slices"
	"strings"
)

// Board is the workspace configuration an item is validated against.
type Board struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Statuses []string `json:"statuses" yaml:"statuses"`
	Types    []string `json:"types" yaml:"types"`
	Members  []string `json:"members" yaml:"members"`
}

// User is an external identity referenced by creator, assignee, and author fields.
type User struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Token string `json:"-" yaml:"token"`
}

// NewBoard constructs a board with de-duplicated vocabulary and members.
func NewBoard(id, name string, statuses, types, members []string) (Board, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return Board{}, ErrInvalidBoardID
	}
	if name == "" {
		name = id
	}
	return Board{
		ID:       id,
		Name:     name,
		Statuses: uniqueTrimmed(statuses),
		Types:    uniqueTrimmed(types),
		Members:  uniqueTrimmed(members),
	}, nil
}

// NewUser constructs a normalized user.
func NewUser(id, name, token string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrInvalidUserID
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, ErrInvalidName
	}
	return User{ID: id, Name: name, Token: strings.TrimSpace(token)}, nil
}

// HasStatus reports whether status is in the board vocabulary.
func (b Board) HasStatus(status string) bool {
	return slices.Contains(b.Statuses, strings.TrimSpace(status))
}

// HasType reports whether itemType is in the board vocabulary.
func (b Board) HasType(itemType string) bool {
	return slices.Contains(b.Types, strings.TrimSpace(itemType))
}

// HasMember reports whether userID is a board member.
func (b Board) HasMember(userID string) bool {
	return slices.Contains(b.Members, strings.TrimSpace(userID))
}

// uniqueTrimmed trims and de-duplicates values while preserving order.
func uniqueTrimmed(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, raw := range in {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
