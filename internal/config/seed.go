package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hylla/itemflow/internal/domain"
)

// BoardSeed lists the users and boards loaded by `itemflow boards seed`.
type BoardSeed struct {
	Users  []domain.User  `yaml:"users"`
	Boards []domain.Board `yaml:"boards"`
}

// LoadBoardSeed reads and normalizes a YAML seed file.
func LoadBoardSeed(path string) (BoardSeed, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return BoardSeed{}, fmt.Errorf("read board seed: %w", err)
	}
	return ParseBoardSeed(content)
}

// ParseBoardSeed decodes a YAML seed document. Unknown keys are rejected.
func ParseBoardSeed(content []byte) (BoardSeed, error) {
	var raw BoardSeed
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return BoardSeed{}, fmt.Errorf("decode board seed: %w", err)
	}

	seed := BoardSeed{
		Users:  make([]domain.User, 0, len(raw.Users)),
		Boards: make([]domain.Board, 0, len(raw.Boards)),
	}
	users := map[string]struct{}{}
	for i, u := range raw.Users {
		user, err := domain.NewUser(u.ID, u.Name, u.Token)
		if err != nil {
			return BoardSeed{}, fmt.Errorf("users[%d]: %w", i, err)
		}
		if _, dup := users[user.ID]; dup {
			return BoardSeed{}, fmt.Errorf("users[%d]: duplicate user id %q", i, user.ID)
		}
		users[user.ID] = struct{}{}
		seed.Users = append(seed.Users, user)
	}
	for i, b := range raw.Boards {
		board, err := domain.NewBoard(b.ID, b.Name, b.Statuses, b.Types, b.Members)
		if err != nil {
			return BoardSeed{}, fmt.Errorf("boards[%d]: %w", i, err)
		}
		if len(board.Statuses) == 0 {
			return BoardSeed{}, fmt.Errorf("boards[%d]: board %q declares no statuses", i, board.ID)
		}
		for _, member := range board.Members {
			if _, ok := users[member]; !ok {
				return BoardSeed{}, fmt.Errorf("boards[%d]: member %q is not a declared user", i, member)
			}
		}
		seed.Boards = append(seed.Boards, board)
	}
	return seed, nil
}
