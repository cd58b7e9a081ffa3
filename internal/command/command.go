// Package command implements the whitespace-split command surface:
// "/listen <community> <category>" and "/silence <community>". It is
// intentionally thin — no routing framework, no inline keyboards.
package command

import (
	"errors"
	"strings"

	"github.com/listingbot/listingbot/internal/listing"
)

// ErrUnknownCommand is returned for anything that isn't a recognized verb
// with the right argument count. Callers log and ignore it.
var ErrUnknownCommand = errors.New("command: unknown or malformed")

// Listen is a parsed "/listen <community> <category>".
type Listen struct {
	Community listing.Community
	Category  listing.Category
}

// Silence is a parsed "/silence <community>".
type Silence struct {
	CommunityName string
}

// Parse splits text on whitespace and matches it against the two known
// verbs.
func Parse(text string) (any, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, ErrUnknownCommand
	}

	switch fields[0] {
	case "/listen":
		if len(fields) != 3 {
			return nil, ErrUnknownCommand
		}
		community, err := listing.NewCommunity(fields[1])
		if err != nil {
			return nil, ErrUnknownCommand
		}
		category, err := listing.ParseCategory(fields[2])
		if err != nil {
			return nil, ErrUnknownCommand
		}
		return Listen{Community: community, Category: category}, nil

	case "/silence":
		if len(fields) != 2 {
			return nil, ErrUnknownCommand
		}
		return Silence{CommunityName: fields[1]}, nil

	default:
		return nil, ErrUnknownCommand
	}
}
