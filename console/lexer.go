package console

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/timtadh/lexmachine"
	"github.com/timtadh/lexmachine/machines"
)

const (
	TOKEN_WORD = iota
	TOKEN_STRING
)

var lexer *lexmachine.Lexer

func init() {
	lexer = lexmachine.NewLexer()
	lexer.Add([]byte(`"(\\.|[^"])*"`), getToken(TOKEN_STRING))
	lexer.Add([]byte("[^ \t\r\n\"]+"), getToken(TOKEN_WORD))
	lexer.Add([]byte(`\s+`), skip)
	if err := lexer.Compile(); err != nil {
		panic(err)
	}
}

func getToken(tokenType int) lexmachine.Action {
	return func(s *lexmachine.Scanner, m *machines.Match) (interface{}, error) {
		return s.Token(tokenType, string(m.Bytes), m), nil
	}
}

func skip(scan *lexmachine.Scanner, match *machines.Match) (interface{}, error) {
	return nil, nil
}

// unquote accepts Go escapes and falls back to the raw text so Windows
// paths like "C:\games" survive.
func unquote(lexeme string) string {
	if s, err := strconv.Unquote(lexeme); err == nil {
		return s
	}
	return lexeme[1 : len(lexeme)-1]
}

// Split tokenizes a command line into arguments. Double quotes group
// arguments containing spaces.
func Split(line string) ([]string, error) {
	scanner, err := lexer.Scanner([]byte(line))
	if err != nil {
		return nil, errors.Wrapf(err, "[console] Failed to create lexer scanner")
	}

	args := make([]string, 0, 4)
	for itok, err, eos := scanner.Next(); !eos; itok, err, eos = scanner.Next() {
		if err != nil {
			if ui, is := err.(*machines.UnconsumedInput); is {
				return nil, errors.Errorf("[console] unterminated quote at column %d", ui.StartColumn)
			}
			return nil, errors.Wrapf(err, "[console] Failed to parse token")
		}
		tok := itok.(*lexmachine.Token)
		switch tok.Type {
		case TOKEN_WORD:
			args = append(args, string(tok.Lexeme))
		case TOKEN_STRING:
			args = append(args, unquote(string(tok.Lexeme)))
		}
	}
	return args, nil
}
