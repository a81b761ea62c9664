package identity

import (
	"bufio"
	"context"
	"io"
	"os"
	"sort"
	"strings"
)

// NewList returns a Verifier backed by a fixed list of users, read from r.
// r should hold one user entry per line, each of the form
//
//     <user name>  <role>  <token>
//
// The fields are separated by whitespace, so neither the user name nor the
// token may contain spaces. The role is "user" or "admin" (case
// insensitive). Empty lines and lines beginning with '#' are skipped.
func NewList(r io.Reader) (Verifier, error) {
	users, err := parseList(r)
	if err != nil {
		return nil, err
	}
	sort.Sort(byToken(users))
	return list{users}, nil
}

// NewListFile reads the list of users from the file fname.
func NewListFile(fname string) (Verifier, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewList(f)
}

// NewListString reads the list of users from data.
func NewListString(data string) (Verifier, error) {
	return NewList(strings.NewReader(data))
}

func parseList(r io.Reader) ([]userEntry, error) {
	var result []userEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		pieces := strings.Fields(scanner.Text())
		if len(pieces) == 0 || pieces[0][0] == '#' {
			continue
		}
		if len(pieces) != 3 {
			// wrong number of columns
			continue
		}
		result = append(result, userEntry{
			token: pieces[2],
			user:  User{Name: pieces[0], Role: ParseRole(pieces[1])},
		})
	}
	return result, scanner.Err()
}

type userEntry struct {
	token string
	user  User
}

type byToken []userEntry

func (ue byToken) Len() int           { return len(ue) }
func (ue byToken) Less(i, j int) bool { return ue[i].token < ue[j].token }
func (ue byToken) Swap(i, j int)      { ue[i], ue[j] = ue[j], ue[i] }

type list struct {
	data []userEntry
}

func (l list) Verify(ctx context.Context, token string) (User, error) {
	users := l.data
	i := sort.Search(len(users), func(i int) bool { return users[i].token >= token })
	if i < len(users) && users[i].token == token {
		return users[i].user, nil
	}
	return User{}, nil
}
